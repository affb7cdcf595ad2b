package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
)

// terminalStatuses are the only statuses retention ever touches.
var terminalStatuses = []model.JobStatus{
	model.JobStatusCompleted,
	model.JobStatusFailed,
	model.JobStatusCanceled,
}

// RetentionServiceOptions groups dependencies for RetentionService.
type RetentionServiceOptions struct {
	Repo    core.RetentionRepository // Required: retention repository
	Config  config.RetentionConfig   // Required: retention configuration
	Logger  *slog.Logger             // Optional: structured logger
	Metrics statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// RetentionService deletes old terminal jobs so the store stays bounded:
// first by age, then by a hard cap on the number of kept jobs.
type RetentionService struct {
	repo    core.RetentionRepository
	config  config.RetentionConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRetentionService constructs a new RetentionService.
func NewRetentionService(opts RetentionServiceOptions) (*RetentionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("RetentionRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RetentionService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger.With("component", "retention_service"),
		metrics: opts.Metrics,
	}, nil
}

// Run starts the retention loop and runs until the context is cancelled.
// Cancellation is a graceful shutdown and returns nil.
func (s *RetentionService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting retention service",
		"interval", s.config.Interval, "max_age", s.config.MaxAge, "max_jobs", s.config.MaxJobs)

	waitWithJitter(ctx, s.config.Interval)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
		s.logger.ErrorContext(ctx, "initial retention sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention service stopping", "reason", ctx.Err())
			return suppressContextCancellation(ctx.Err())

		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
				s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one full cleanup pass: expired jobs by age, then the overall
// job cap. Batches repeat until the store reports nothing left to delete.
func (s *RetentionService) Sweep(ctx context.Context) error {
	start := time.Now()

	expired, err := s.deleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired jobs: %w", err)
	}

	trimmed, err := s.trimOverLimit(ctx)
	if err != nil {
		return fmt.Errorf("trim jobs over limit: %w", err)
	}

	if expired > 0 || trimmed > 0 {
		s.logger.InfoContext(ctx, "retention sweep done",
			"expired", expired, "trimmed", trimmed, "elapsed", time.Since(start))
	}
	if s.metrics != nil {
		s.metrics.Count("retention.deleted", expired, map[string]string{"kind": "expired"})
		s.metrics.Count("retention.deleted", trimmed, map[string]string{"kind": "over_limit"})
		s.metrics.Timing("retention.sweep", time.Since(start), nil)
	}
	return nil
}

func (s *RetentionService) deleteExpired(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Statuses:  terminalStatuses,
			MaxAge:    s.config.MaxAge,
			BatchSize: s.config.BatchSize,
		})
		total += count
		if err != nil {
			return total, err
		}
		if count == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (s *RetentionService) trimOverLimit(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.repo.TrimJobsOverLimit(ctx, s.config.MaxJobs, s.config.BatchSize)
		total += count
		if err != nil {
			return total, err
		}
		if count == 0 {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
