package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/data"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
	"github.com/leadvalidator/leadvalidator/internal/observability/metrics"
	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
	"github.com/leadvalidator/leadvalidator/internal/registry"
	"github.com/leadvalidator/leadvalidator/internal/verify"
)

type jobRunnerOptions struct {
	Job      *model.Job
	Rows     []model.JobRow
	Jobs     core.JobRepository
	Registry *registry.Registry
	Verifier verify.Verifier
	Config   config.JobsConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Clock    data.TimeProvider
}

// jobRunner drives one job from queued to a terminal state: it verifies rows
// in order, accumulates the summary, and flushes buffered results to the
// store at the configured row and time thresholds.
type jobRunner struct {
	job      *model.Job
	rows     []model.JobRow
	jobs     core.JobRepository
	registry *registry.Registry
	verifier verify.Verifier
	config   config.JobsConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	clock    data.TimeProvider

	acc       *model.SummaryAccumulator
	buffer    []*model.ResultRow
	processed int
	lastFlush time.Time
}

func newJobRunner(opts jobRunnerOptions) *jobRunner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	return &jobRunner{
		job:      opts.Job,
		rows:     opts.Rows,
		jobs:     opts.Jobs,
		registry: opts.Registry,
		verifier: opts.Verifier,
		config:   opts.Config,
		logger:   logger.With("component", "job_runner", "job_id", opts.Job.ID),
		metrics:  opts.Metrics,
		clock:    clock,
		acc:      model.NewSummaryAccumulator(),
	}
}

// run executes the job to a terminal state. It never returns an error: every
// failure path persists a terminal status instead.
func (r *jobRunner) run(ctx context.Context) {
	defer r.registry.Remove(r.job.ID)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "job runner panicked", "panic", rec)
			r.finalizeFailed(fmt.Sprintf("internal error: %v", rec))
		}
	}()

	started, err := r.jobs.MarkRunning(ctx, r.job.ID, r.clock.Now())
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job running", "error", err)
		r.finalizeFailed(fmt.Sprintf("start failed: %v", err))
		return
	}
	if !started {
		// The job left queued state without us: canceled before start or
		// failed by reconciliation. Nothing to run.
		r.logger.InfoContext(ctx, "job no longer queued, runner exiting")
		return
	}
	r.registry.MarkRunning(r.job.ID)
	r.emitTransition("running", metrics.ResultSuccess, 0)

	start := r.clock.Now()
	r.lastFlush = start

	for _, row := range r.rows {
		if ctx.Err() != nil {
			r.finalizeFailed("process shutting down")
			return
		}
		if r.registry.CancelRequested(r.job.ID) {
			r.finalizeCanceled()
			return
		}

		outcome := r.verifier.Verify(ctx, row.Email)
		now := r.clock.Now()
		result := &model.ResultRow{
			JobID:       r.job.ID,
			RowIndex:    row.Index,
			Email:       row.Email,
			Status:      outcome.Status,
			Reason:      outcome.Reason,
			Score:       outcome.Score,
			RiskFactors: outcome.RiskFactors,
			Payload:     row.Payload,
			CreatedAt:   now,
		}
		r.acc.Observe(result)
		r.buffer = append(r.buffer, result)
		r.processed++
		r.registry.UpdateProgress(r.job.ID, r.processed, now)
		metrics.EmitVerification(r.metrics, string(outcome.Status), outcome.Reason)

		if r.shouldFlush(now) {
			if err := r.flush(ctx); err != nil {
				r.logger.ErrorContext(ctx, "progress flush failed permanently", "error", err)
				r.finalizeFailed(fmt.Sprintf("persistence failure: %v", err))
				return
			}
		}
	}

	if r.registry.CancelRequested(r.job.ID) {
		r.finalizeCanceled()
		return
	}

	if err := r.flush(ctx); err != nil {
		r.logger.ErrorContext(ctx, "final flush failed permanently", "error", err)
		r.finalizeFailed(fmt.Sprintf("persistence failure: %v", err))
		return
	}
	r.finalizeCompleted(r.clock.Now().Sub(start))
}

func (r *jobRunner) shouldFlush(now time.Time) bool {
	if len(r.buffer) >= r.config.HeartbeatRows {
		return true
	}
	return len(r.buffer) > 0 && now.Sub(r.lastFlush) >= r.config.HeartbeatInterval
}

// flush writes the buffered rows and current progress, retrying transient
// store errors with a fixed backoff. A non-retryable error or exhausted
// attempts surface to the caller, which fails the job.
func (r *jobRunner) flush(ctx context.Context) error {
	params := core.FlushProgressParams{
		JobID:         r.job.ID,
		Rows:          r.buffer,
		ProcessedRows: r.processed,
		Heartbeat:     r.clock.Now(),
		Summary:       r.acc.Snapshot(),
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.FlushMaxAttempts; attempt++ {
		lastErr = r.jobs.FlushProgress(ctx, params)
		if lastErr == nil {
			r.buffer = r.buffer[:0]
			r.lastFlush = r.clock.Now()
			return nil
		}
		if isContextCancellation(lastErr) || !data.IsRetryable(lastErr) {
			return lastErr
		}
		r.logger.WarnContext(ctx, "progress flush failed, retrying",
			"attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.FlushRetryBackoff):
		}
	}
	return lastErr
}

// finalizeCompleted persists the completed state. Losing the terminal race
// (stall monitor got there first) is treated as a no-op.
func (r *jobRunner) finalizeCompleted(elapsed time.Duration) {
	ctx := context.Background()
	changed, err := r.jobs.Complete(ctx, core.CompleteJobParams{
		JobID:       r.job.ID,
		Summary:     r.acc.Snapshot(),
		CompletedAt: r.clock.Now(),
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to persist completion", "error", err)
		r.emitTransition("completed", metrics.ResultError, elapsed)
		return
	}
	if !changed {
		r.emitTransition("completed", metrics.ResultNoop, elapsed)
		return
	}
	r.registry.MarkTerminal(r.job.ID, model.JobStatusCompleted)
	r.logger.InfoContext(ctx, "job completed",
		"processed_rows", r.processed, "elapsed", elapsed)
	r.emitTransition("completed", metrics.ResultSuccess, elapsed)
}

// finalizeCanceled drains the buffer best-effort and persists the canceled
// state. Partial results stay queryable.
func (r *jobRunner) finalizeCanceled() {
	ctx := context.Background()
	if len(r.buffer) > 0 {
		if err := r.flush(ctx); err != nil {
			r.logger.WarnContext(ctx, "could not flush partial results on cancel", "error", err)
		}
	}

	changed, err := r.jobs.Cancel(ctx, r.job.ID, r.clock.Now())
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to persist cancellation", "error", err)
		r.emitTransition("canceled", metrics.ResultError, 0)
		return
	}
	if !changed {
		r.emitTransition("canceled", metrics.ResultNoop, 0)
		return
	}
	r.registry.MarkTerminal(r.job.ID, model.JobStatusCanceled)
	r.logger.InfoContext(ctx, "job canceled", "processed_rows", r.processed)
	r.emitTransition("canceled", metrics.ResultSuccess, 0)
}

func (r *jobRunner) finalizeFailed(reason string) {
	ctx := context.Background()
	changed, err := r.jobs.Fail(ctx, r.job.ID, reason, r.clock.Now())
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to persist failure", "error", err, "reason", reason)
		r.emitTransition("failed", metrics.ResultError, 0)
		return
	}
	if !changed {
		r.emitTransition("failed", metrics.ResultNoop, 0)
		return
	}
	r.registry.MarkTerminal(r.job.ID, model.JobStatusFailed)
	r.logger.WarnContext(ctx, "job failed", "reason", reason, "processed_rows", r.processed)
	r.emitTransition("failed", metrics.ResultSuccess, 0)
}

func (r *jobRunner) emitTransition(transition, result string, elapsed time.Duration) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   elapsed,
	})
}
