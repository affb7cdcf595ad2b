package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VerifierMode selects between real network verification and the
// deterministic, networkless mock pipeline.
type VerifierMode string

const (
	// VerifierModeReal performs DNS and SMTP network checks.
	VerifierModeReal VerifierMode = "real"
	// VerifierModeMock applies only the static checks; accepted addresses
	// report smtp_ok without any network traffic.
	VerifierModeMock VerifierMode = "mock"
)

// Valid returns true if the VerifierMode is one of the known values.
func (m VerifierMode) Valid() bool {
	return m == VerifierModeReal || m == VerifierModeMock
}

// UnmarshalText implements encoding.TextUnmarshaler for VerifierMode.
func (m *VerifierMode) UnmarshalText(text []byte) error {
	v := VerifierMode(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid VerifierMode: %q (valid options: real, mock)", string(text))
	}
	*m = v
	return nil
}

// VerifierConfig contains verification pipeline configuration.
type VerifierConfig struct {
	// Mode selects real or mock verification.
	Mode VerifierMode `env:"VERIFIER_MODE" envDefault:"real"`

	// NetworkTimeout applies to each individual DNS lookup and SMTP
	// conversation. Distinct from the job-level stall timeout, which is a
	// backstop for retry loops exceeding expectation.
	NetworkTimeout time.Duration `env:"VERIFIER_NETWORK_TIMEOUT" envDefault:"10s"`

	// CatchAllTTL is the lifetime of cached catch-all verdicts.
	CatchAllTTL time.Duration `env:"VERIFIER_CATCH_ALL_TTL" envDefault:"24h"`

	// SMTPHello is the domain announced in the HELO command.
	SMTPHello string `env:"VERIFIER_SMTP_HELLO" envDefault:"verifier.leadvalidator.io"`

	// SMTPFrom is the envelope sender used for mailbox probes.
	SMTPFrom string `env:"VERIFIER_SMTP_FROM" envDefault:"probe@leadvalidator.io"`

	// SMTPMaxConcurrent caps simultaneous SMTP conversations across all jobs.
	SMTPMaxConcurrent int `env:"VERIFIER_SMTP_MAX_CONCURRENT" envDefault:"8"`

	// SMTPRetries is the number of extra attempts after a timeout or 4xx.
	SMTPRetries int `env:"VERIFIER_SMTP_RETRIES" envDefault:"1"`

	// SMTPRetryBackoff is the base backoff between SMTP retry attempts.
	SMTPRetryBackoff time.Duration `env:"VERIFIER_SMTP_RETRY_BACKOFF" envDefault:"2s"`

	// ListsFile optionally points at a YAML file overriding the built-in
	// disposable/role/free-provider lists. See lists.go.
	ListsFile string `env:"VERIFIER_LISTS_FILE" envDefault:""`
}

// Sanitize applies guardrails to verifier configuration values.
func (c *VerifierConfig) Sanitize() {
	if !c.Mode.Valid() {
		c.Mode = VerifierModeReal
	}
	if c.NetworkTimeout < time.Second {
		c.NetworkTimeout = time.Second
	}
	if c.NetworkTimeout > time.Minute {
		c.NetworkTimeout = time.Minute
	}
	if c.CatchAllTTL < time.Minute {
		c.CatchAllTTL = time.Minute
	}
	if c.SMTPMaxConcurrent < 1 {
		c.SMTPMaxConcurrent = 1
	}
	if c.SMTPRetries < 0 {
		c.SMTPRetries = 0
	}
	if c.SMTPRetryBackoff <= 0 {
		c.SMTPRetryBackoff = 2 * time.Second
	}
}

// Validate rejects configurations that Sanitize cannot repair.
func (c *VerifierConfig) Validate() error {
	if c.SMTPHello == "" {
		return errors.New("VERIFIER_SMTP_HELLO must not be empty")
	}
	if !strings.Contains(c.SMTPFrom, "@") {
		return fmt.Errorf("VERIFIER_SMTP_FROM must be an email address, got %q", c.SMTPFrom)
	}
	return nil
}

// ScoringConfig is the penalty table applied to valid/risky terminal verdicts.
// Policy changes happen here, not in pipeline code.
type ScoringConfig struct {
	// FreeProvider is subtracted when the domain is a free email provider.
	FreeProvider int `env:"SCORE_PENALTY_FREE_PROVIDER" envDefault:"5"`
	// CatchAll is subtracted when the domain accepts any local-part.
	CatchAll int `env:"SCORE_PENALTY_CATCH_ALL" envDefault:"15"`
	// RoleBased is subtracted for generic local-parts. Unreachable through
	// the pipeline today: role-based addresses short-circuit as invalid
	// before scoring applies. Kept so the policy table matches the product.
	RoleBased int `env:"SCORE_PENALTY_ROLE_BASED" envDefault:"25"`
	// Unreachable is subtracted when the SMTP conversation timed out or
	// soft-failed.
	Unreachable int `env:"SCORE_PENALTY_UNREACHABLE" envDefault:"25"`
	// Unverifiable is subtracted when a domain cannot be verified at all.
	Unverifiable int `env:"SCORE_PENALTY_UNVERIFIABLE" envDefault:"40"`
}

// Sanitize clamps penalties to the score range.
func (c *ScoringConfig) Sanitize() {
	clamp := func(v *int) {
		if *v < 0 {
			*v = 0
		}
		if *v > 100 {
			*v = 100
		}
	}
	clamp(&c.FreeProvider)
	clamp(&c.CatchAll)
	clamp(&c.RoleBased)
	clamp(&c.Unreachable)
	clamp(&c.Unverifiable)
}
