package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// VerifyStatus classifies a single verified address.
type VerifyStatus string

const (
	// StatusValid indicates the mailbox was positively confirmed.
	StatusValid VerifyStatus = "valid"
	// StatusRisky indicates the address could not be confirmed either way.
	StatusRisky VerifyStatus = "risky"
	// StatusInvalid indicates the address is definitively undeliverable.
	StatusInvalid VerifyStatus = "invalid"
)

// Valid returns true if the VerifyStatus is one of the known values.
func (s VerifyStatus) Valid() bool {
	return s == StatusValid || s == StatusRisky || s == StatusInvalid
}

// Reason codes attached to every result row. The reason is the terminal
// pipeline verdict; risk factors carry the scoring detail.
const (
	ReasonEmptyEmail       = "empty_email"
	ReasonBadSyntax        = "bad_syntax"
	ReasonDisposableDomain = "disposable_domain"
	ReasonRoleBased        = "role_based"
	ReasonNoMX             = "no_mx"
	ReasonDNSTimeout       = "no_mx_dns_timeout"
	ReasonSMTPOK           = "smtp_ok"
	ReasonSMTPReject       = "smtp_reject"
	ReasonSMTPTimeout      = "smtp_timeout"
	ReasonSMTPSoftFail     = "smtp_soft_fail"
	ReasonCatchAll         = "domain_accepts_all"
)

// Risk factor names contributing to a reduced confidence score.
const (
	RiskInvalidSyntax      = "invalid_syntax"
	RiskDisposableProvider = "disposable_provider"
	RiskRoleBased          = "role_based_email"
	RiskNoMailServer       = "no_mail_server"
	RiskMailboxNotFound    = "mailbox_not_found"
	RiskSMTPUnreachable    = "smtp_unreachable"
	RiskTemporarySMTP      = "temporary_smtp_failure"
	RiskCatchAllDomain     = "catch_all_domain"
	RiskFreeProvider       = "free_email_provider"
	RiskUnverifiable       = "unverifiable_domain"
)

// ResultRow is the immutable verification outcome for one input row.
// Exactly one ResultRow is produced per input row, in input order.
type ResultRow struct {
	JobID       string            `json:"job_id"            db:"job_id"`
	RowIndex    int               `json:"row_index"         db:"row_index"`
	Email       string            `json:"email"             db:"email"`
	Status      VerifyStatus      `json:"status"            db:"status"`
	Reason      string            `json:"reason"            db:"reason"`
	Score       int               `json:"score"             db:"score"`
	RiskFactors []string          `json:"risk_factors"      db:"risk_factors"`
	Payload     map[string]string `json:"payload,omitempty" db:"payload"`
	CreatedAt   time.Time         `json:"created_at"        db:"created_at"`
}

// Validate checks the internal invariants every result row must hold.
func (r *ResultRow) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("invalid result status %q", r.Status)
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %d out of range [0,100]", r.Score)
	}
	return nil
}

// ResultFilter selects which result rows a download or listing includes.
type ResultFilter string

const (
	// FilterAll includes every row.
	FilterAll ResultFilter = "all"
	// FilterValid includes only valid rows.
	FilterValid ResultFilter = "valid"
	// FilterRisky includes only risky rows.
	FilterRisky ResultFilter = "risky"
	// FilterInvalid includes only invalid rows.
	FilterInvalid ResultFilter = "invalid"
	// FilterRiskyInvalid includes risky and invalid rows.
	FilterRiskyInvalid ResultFilter = "risky_invalid"
	// FilterScores includes every row; rendering reduces it to email+score columns.
	FilterScores ResultFilter = "scores"
)

// Valid returns true if the ResultFilter is one of the known values.
func (f ResultFilter) Valid() bool {
	switch f {
	case FilterAll, FilterValid, FilterRisky, FilterInvalid, FilterRiskyInvalid, FilterScores:
		return true
	}
	return false
}

// Statuses returns the verify statuses the filter matches, or nil when it
// matches every status.
func (f ResultFilter) Statuses() []VerifyStatus {
	switch f {
	case FilterValid:
		return []VerifyStatus{StatusValid}
	case FilterRisky:
		return []VerifyStatus{StatusRisky}
	case FilterInvalid:
		return []VerifyStatus{StatusInvalid}
	case FilterRiskyInvalid:
		return []VerifyStatus{StatusRisky, StatusInvalid}
	}
	return nil
}

// Matches reports whether a row with the given status passes the filter.
func (f ResultFilter) Matches(s VerifyStatus) bool {
	statuses := f.Statuses()
	if statuses == nil {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for ResultFilter.
func (f *ResultFilter) UnmarshalText(text []byte) error {
	v := ResultFilter(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return errors.New("invalid ResultFilter: " + string(text))
	}
	*f = v
	return nil
}
