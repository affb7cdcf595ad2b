package verify

import (
	"context"
	"log/slog"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// MockVerifier applies the offline checks and then deems every surviving
// address deliverable. Used in development and demos where outbound port 25
// is unavailable.
type MockVerifier struct {
	lists  config.Lists
	score  scorer
	logger *slog.Logger
}

// NewMockVerifier creates a Verifier that never touches the network.
func NewMockVerifier(lists config.Lists, scoring config.ScoringConfig, logger *slog.Logger) *MockVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockVerifier{
		lists:  lists,
		score:  scorer{cfg: scoring},
		logger: logger.With("component", "mock_verifier"),
	}
}

var _ Verifier = (*MockVerifier)(nil)

// Verify applies syntax, disposable and role checks, then reports the
// address deliverable.
func (m *MockVerifier) Verify(_ context.Context, email string) Outcome {
	if email == "" {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonEmptyEmail,
			Score:       0,
			RiskFactors: []string{model.RiskInvalidSyntax},
		}
	}

	local, domain, ok := splitAddress(email)
	if !ok {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonBadSyntax,
			Score:       0,
			RiskFactors: []string{model.RiskInvalidSyntax},
		}
	}

	if m.lists.DisposableDomains[domain] {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonDisposableDomain,
			Score:       0,
			RiskFactors: []string{model.RiskDisposableProvider},
		}
	}

	if m.lists.RoleLocalParts[local] {
		return Outcome{
			Status:      model.StatusInvalid,
			Reason:      model.ReasonRoleBased,
			Score:       0,
			RiskFactors: []string{model.RiskRoleBased},
		}
	}

	free := m.lists.FreeProviders[domain]
	var factors []string
	if free {
		factors = []string{model.RiskFreeProvider}
	}
	return Outcome{
		Status:      model.StatusValid,
		Reason:      model.ReasonSMTPOK,
		Score:       m.score.deliverable(free),
		RiskFactors: factors,
	}
}
