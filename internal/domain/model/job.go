// Package model defines the core data types shared across the lead validator job system.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a verification job.
type JobStatus string

const (
	// JobStatusQueued indicates a job has been accepted but not yet admitted to run.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job processed every row successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job stopped before completion due to a fault or stall.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCanceled indicates a job was stopped cooperatively by the caller.
	JobStatusCanceled JobStatus = "canceled"
)

// ErrJobNotFound is returned when a job cannot be located by ID.
var ErrJobNotFound = errors.New("job not found")

// ErrTooManyConcurrentJobs is returned when admission control rejects a new job.
var ErrTooManyConcurrentJobs = errors.New("too many concurrent jobs")

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Terminal returns true if the status is one of the three terminal states.
// Terminal states are absorbing: no transition leaves them.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

// CanTransitionTo reports whether moving from s to next is a legal, monotone
// lifecycle transition. Jobs never re-enter queued or running.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStatusQueued:
		// A queued job may be canceled or failed without ever running.
		return next == JobStatusRunning || next == JobStatusCanceled || next == JobStatusFailed
	case JobStatusRunning:
		return next.Terminal()
	}
	return false
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow env parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return errors.New("invalid JobStatus: " + string(text))
	}
	*s = v
	return nil
}

// Job represents a verification job with its progress and lifecycle metadata.
type Job struct {
	ID            string     `json:"id"                      db:"id"`
	Name          string     `json:"name"                    db:"name"`
	Filename      string     `json:"filename"                db:"filename"`
	Status        JobStatus  `json:"status"                  db:"status"`
	TotalRows     int        `json:"total_rows"              db:"total_rows"`
	ProcessedRows int        `json:"processed_rows"          db:"processed_rows"`
	Summary       *Summary   `json:"summary,omitempty"       db:"summary"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty" db:"last_heartbeat"`
	CreatedAt     time.Time  `json:"created_at"              db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
}

// JobRow is one input row of a job: the normalized email address plus the
// original payload it was extracted from. CSV parsing happens upstream; the
// core only consumes the ordered sequence.
type JobRow struct {
	Index   int               `json:"index"`
	Email   string            `json:"email"`
	Payload map[string]string `json:"payload,omitempty"`
}

// CreateJobRequest carries the inputs for starting a new verification job.
type CreateJobRequest struct {
	Name     string   `json:"name"`
	Filename string   `json:"filename"`
	Rows     []JobRow `json:"rows"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if len(r.Rows) == 0 {
		return errors.New("at least one row is required")
	}
	for i := range r.Rows {
		if r.Rows[i].Index != i {
			return errors.New("row indexes must be contiguous starting at 0")
		}
	}
	return nil
}

// Progress is the live view of a job served to callers while it runs.
type Progress struct {
	Status        JobStatus `json:"status"`
	ProcessedRows int       `json:"processed_rows"`
	TotalRows     int       `json:"total_rows"`
	Summary       *Summary  `json:"summary,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// JobListOptions controls pagination for job history listings.
type JobListOptions struct {
	Limit  int
	Offset int
}
