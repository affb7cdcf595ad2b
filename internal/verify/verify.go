// Package verify implements the per-address verification pipeline: static
// checks against the configured lists, MX resolution, SMTP mailbox probing
// and catch-all detection, folded into a scored outcome.
package verify

import (
	"context"

	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// Outcome is the verdict for a single email address. Every path through the
// pipeline produces an Outcome; network and protocol failures are folded
// into risky verdicts rather than surfaced as errors.
type Outcome struct {
	Status      model.VerifyStatus
	Reason      string
	Score       int
	RiskFactors []string
}

// Verifier produces an Outcome for one email address.
type Verifier interface {
	Verify(ctx context.Context, email string) Outcome
}
