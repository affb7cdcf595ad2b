package verify

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

func TestMockVerifier(t *testing.T) {
	m := NewMockVerifier(config.DefaultLists(), testScoring(), slog.New(slog.DiscardHandler))
	ctx := context.Background()

	tests := []struct {
		name   string
		email  string
		status model.VerifyStatus
		reason string
		score  int
	}{
		{"deliverable", "test@example.com", model.StatusValid, model.ReasonSMTPOK, 100},
		{"free provider", "alice@gmail.com", model.StatusValid, model.ReasonSMTPOK, 95},
		{"bad syntax", "bad-email", model.StatusInvalid, model.ReasonBadSyntax, 0},
		{"empty", "", model.StatusInvalid, model.ReasonEmptyEmail, 0},
		{"disposable", "user@10minutemail.com", model.StatusInvalid, model.ReasonDisposableDomain, 0},
		{"role based", "sales@corp.example.com", model.StatusInvalid, model.ReasonRoleBased, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := m.Verify(ctx, tt.email)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Equal(t, tt.score, outcome.Score)
		})
	}
}
