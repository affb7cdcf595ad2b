package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/data"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
	"github.com/leadvalidator/leadvalidator/internal/registry"
	"github.com/leadvalidator/leadvalidator/internal/verify"
)

// ErrJobActive is returned when deleting a job that has not reached a
// terminal state yet.
var ErrJobActive = errors.New("job is still active")

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Jobs     core.JobRepository    // Required: job repository
	Results  core.ResultRepository // Required: result repository
	Registry *registry.Registry    // Required: live job registry
	Verifier verify.Verifier       // Required: verification pipeline
	Config   config.JobsConfig     // Required: job engine configuration

	BaseContext  context.Context   // Optional: lifetime context for job runners
	Logger       *slog.Logger      // Optional: structured logger
	Metrics      statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider // Optional: clock, defaults to real time
}

// JobService owns the job lifecycle: admission, creation, cancellation,
// progress and result queries, and startup reconciliation.
type JobService struct {
	jobs     core.JobRepository
	results  core.ResultRepository
	registry *registry.Registry
	verifier verify.Verifier
	limiter  *ConcurrencyLimiter
	config   config.JobsConfig

	baseCtx context.Context
	logger  *slog.Logger
	metrics statsd.Sink
	clock   data.TimeProvider
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Results == nil {
		return nil, errors.New("ResultRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("verifier is required")
	}

	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	return &JobService{
		jobs:     opts.Jobs,
		results:  opts.Results,
		registry: opts.Registry,
		verifier: opts.Verifier,
		limiter:  NewConcurrencyLimiter(opts.Config.MaxConcurrent),
		config:   opts.Config,
		baseCtx:  baseCtx,
		logger:   logger.With("component", "job_service"),
		metrics:  opts.Metrics,
		clock:    clock,
	}, nil
}

// CreateJob admits, persists and starts a verification job. Admission is
// checked before anything is written: a rejected request leaves no record
// behind. Returns model.ErrTooManyConcurrentJobs when all slots are taken.
func (s *JobService) CreateJob(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !s.limiter.TryAcquire() {
		s.logger.InfoContext(ctx, "job rejected, concurrency limit reached",
			"max_concurrent", s.config.MaxConcurrent)
		return nil, model.ErrTooManyConcurrentJobs
	}
	released := false
	defer func() {
		if released {
			s.limiter.Release()
		}
	}()

	job := &model.Job{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Filename:  req.Filename,
		Status:    model.JobStatusQueued,
		TotalRows: len(req.Rows),
		CreatedAt: s.clock.Now(),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		released = true
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.registry.Register(job.ID, job.TotalRows, s.limiter.Release); err != nil {
		released = true
		return nil, fmt.Errorf("register job: %w", err)
	}

	runner := newJobRunner(jobRunnerOptions{
		Job:      job,
		Rows:     req.Rows,
		Jobs:     s.jobs,
		Registry: s.registry,
		Verifier: s.verifier,
		Config:   s.config,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Clock:    s.clock,
	})
	go runner.run(s.baseCtx)

	s.logger.InfoContext(ctx, "job started",
		"job_id", job.ID, "name", job.Name, "total_rows", job.TotalRows)
	return job, nil
}

// GetJob returns the stored job record.
func (s *JobService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs returns the job history, newest first.
func (s *JobService) ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	return s.jobs.List(ctx, opts)
}

// GetProgress returns the live view of a job. The summary and error message
// always come from the store; while the job runs, the counters come from the
// in-memory registry so they are fresher than the last flush.
func (s *JobService) GetProgress(ctx context.Context, id string) (*model.Progress, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	progress := &model.Progress{
		Status:        job.Status,
		ProcessedRows: job.ProcessedRows,
		TotalRows:     job.TotalRows,
		Summary:       job.Summary,
	}
	if job.ErrorMessage != nil {
		progress.ErrorMessage = *job.ErrorMessage
	}

	if view, ok := s.registry.Snapshot(id); ok && !view.Status.Terminal() {
		progress.Status = view.Status
		progress.ProcessedRows = view.ProcessedRows
		progress.TotalRows = view.TotalRows
	}
	return progress, nil
}

// CancelJob requests cooperative cancellation. A live runner observes the
// flag at its next row boundary and persists the canceled state itself. A
// job without a live runner is canceled directly in the store. Canceling a
// terminal job is a no-op.
func (s *JobService) CancelJob(ctx context.Context, id string) error {
	if s.registry.RequestCancel(id) {
		s.logger.InfoContext(ctx, "cancellation requested", "job_id", id)
		return nil
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	changed, err := s.jobs.Cancel(ctx, id, s.clock.Now())
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if changed {
		s.logger.InfoContext(ctx, "job canceled without live runner", "job_id", id)
	}
	return nil
}

// GetResults returns the persisted result rows for a job, filtered.
func (s *JobService) GetResults(ctx context.Context, id string, filter model.ResultFilter) ([]*model.ResultRow, error) {
	if !filter.Valid() {
		return nil, fmt.Errorf("unknown result filter %q", filter)
	}
	// Surface not-found before an empty result set.
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.results.ListByJob(ctx, id, filter)
}

// CountResults returns the number of persisted result rows for a job,
// regardless of filter. Callers pair it with GetResults to size a response
// before streaming rows.
func (s *JobService) CountResults(ctx context.Context, id string) (int, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return 0, err
	}
	return s.results.CountByJob(ctx, id)
}

// DeleteJob removes a terminal job and its results. Active jobs must be
// canceled first.
func (s *JobService) DeleteJob(ctx context.Context, id string) error {
	if view, ok := s.registry.Snapshot(id); ok && !view.Status.Terminal() {
		return ErrJobActive
	}

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return ErrJobActive
	}
	return s.jobs.Delete(ctx, id)
}

// ReconcileOrphans fails every queued or running job left behind by a
// previous process. Must run once at startup, before any new job is
// admitted.
func (s *JobService) ReconcileOrphans(ctx context.Context) (int64, error) {
	count, err := s.jobs.FailOrphaned(ctx, "process restarted before the job finished", s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("reconcile orphaned jobs: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "failed orphaned jobs from previous run", "count", count)
	}
	return count, nil
}
