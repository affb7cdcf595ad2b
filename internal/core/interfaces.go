// Package core defines the ports between the service layer and its
// collaborators (durable store, domain cache). Services depend on these
// interfaces, never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// FlushProgressParams groups the data written by one periodic progress flush.
// The result batch and the progress fields are persisted atomically so the
// stored processed count always equals the stored result count.
type FlushProgressParams struct {
	JobID         string
	Rows          []*model.ResultRow
	ProcessedRows int
	Heartbeat     time.Time
	Summary       *model.Summary
}

// CompleteJobParams groups the fields set when a job reaches completed.
type CompleteJobParams struct {
	JobID       string
	Summary     *model.Summary
	CompletedAt time.Time
}

// JobRepository defines the durable-store contract for job records.
//
// State-changing methods enforce monotone transitions at the store level:
// they return (false, nil) when the job is already terminal, so concurrent
// observers (runner, monitor, cancel requests) settle on exactly one outcome.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error

	// MarkRunning transitions queued -> running and stamps the first heartbeat.
	MarkRunning(ctx context.Context, id string, heartbeat time.Time) (bool, error)

	// FlushProgress persists a result batch together with progress, heartbeat
	// and the incremental summary, in one transaction.
	FlushProgress(ctx context.Context, params FlushProgressParams) error

	// Complete transitions running -> completed.
	Complete(ctx context.Context, params CompleteJobParams) (bool, error)

	// Fail transitions a non-terminal job to failed with an error message.
	Fail(ctx context.Context, id, errMsg string, completedAt time.Time) (bool, error)

	// Cancel transitions a non-terminal job to canceled.
	Cancel(ctx context.Context, id string, completedAt time.Time) (bool, error)

	// FailOrphaned fails every job still queued or running in the store.
	// Called once at startup, before any runner exists: such jobs lost their
	// in-memory state when the previous process exited.
	FailOrphaned(ctx context.Context, errMsg string, completedAt time.Time) (int64, error)
}

// ResultRepository defines the durable-store contract for result rows.
type ResultRepository interface {
	// ListByJob returns result rows matching the filter, ordered by row index.
	ListByJob(ctx context.Context, jobID string, filter model.ResultFilter) ([]*model.ResultRow, error)
	// CountByJob returns the number of persisted result rows for a job.
	CountByJob(ctx context.Context, jobID string) (int, error)
}

// DomainCache caches catch-all verdicts per mail domain so one expensive
// probe serves every address at that domain within the TTL window.
// Implementations must be safe for concurrent use by multiple job runners.
type DomainCache interface {
	// Get returns the cached verdict for a domain. found is false when the
	// domain is absent or its entry has expired.
	Get(ctx context.Context, domain string) (isCatchAll bool, found bool, err error)
	// Put stores a verdict with the given TTL.
	Put(ctx context.Context, domain string, isCatchAll bool, ttl time.Duration) error
}

// DeleteOldJobsParams groups parameters for RetentionRepository.DeleteOldJobs.
type DeleteOldJobsParams struct {
	Statuses  []model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// RetentionRepository defines the cleanup contract used by the retention
// sweeper. Only terminal jobs are ever deleted; result rows go with their job
// via the store's cascade.
type RetentionRepository interface {
	// DeleteOldJobs deletes terminal jobs older than MaxAge, up to BatchSize
	// per call. Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)

	// TrimJobsOverLimit deletes the oldest terminal jobs beyond maxJobs,
	// up to batchSize per call. Returns the number of jobs deleted.
	TrimJobsOverLimit(ctx context.Context, maxJobs, batchSize int) (int64, error)
}
