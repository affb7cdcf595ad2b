package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/data"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
	obsmetrics "github.com/leadvalidator/leadvalidator/internal/observability/metrics"
	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
	"github.com/leadvalidator/leadvalidator/internal/registry"
)

// StallMonitorOptions groups dependencies for StallMonitor.
type StallMonitorOptions struct {
	Repo     core.JobRepository   // Required: job repository
	Registry *registry.Registry   // Required: live job registry
	Config   config.MonitorConfig // Required: monitor configuration

	Logger       *slog.Logger      // Optional: structured logger
	Metrics      statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider // Optional: clock, defaults to real time
}

// StallMonitor periodically scans running jobs and fails any whose heartbeat
// has gone quiet past the stall timeout. A wedged runner therefore cannot
// hold its concurrency slot forever.
type StallMonitor struct {
	repo     core.JobRepository
	registry *registry.Registry
	config   config.MonitorConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	clock    data.TimeProvider
}

// NewStallMonitor constructs a new StallMonitor.
func NewStallMonitor(opts StallMonitorOptions) (*StallMonitor, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}

	return &StallMonitor{
		repo:     opts.Repo,
		registry: opts.Registry,
		config:   opts.Config,
		logger:   logger.With("component", "stall_monitor"),
		metrics:  opts.Metrics,
		clock:    clock,
	}, nil
}

// Run starts the monitor loop and runs until the context is cancelled.
// Cancellation is a graceful shutdown and returns nil.
func (m *StallMonitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "starting stall monitor",
		"interval", m.config.Interval, "stall_timeout", m.config.StallTimeout)

	// Jitter spreads the first sweep when several instances start together.
	waitWithJitter(ctx, m.config.Interval)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "stall monitor stopping", "reason", ctx.Err())
			return suppressContextCancellation(ctx.Err())

		case <-ticker.C:
			if err := m.sweep(ctx); err != nil && !isContextCancellation(err) {
				m.logger.ErrorContext(ctx, "stall sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over the running jobs. Exported for tests and for a
// forced sweep at startup.
func (m *StallMonitor) Sweep(ctx context.Context) error {
	return m.sweep(ctx)
}

func (m *StallMonitor) sweep(ctx context.Context) error {
	now := m.clock.Now()
	var errs []error

	for _, view := range m.registry.Running() {
		quiet := now.Sub(view.LastHeartbeat)
		if quiet <= m.config.StallTimeout {
			continue
		}
		if err := m.failStalled(ctx, view.ID, quiet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *StallMonitor) failStalled(ctx context.Context, id string, quiet time.Duration) error {
	msg := fmt.Sprintf("job stalled: no heartbeat for %s", quiet.Round(time.Second))

	changed, err := m.repo.Fail(ctx, id, msg, m.clock.Now())
	if err != nil {
		return fmt.Errorf("fail stalled job %s: %w", id, err)
	}
	if !changed {
		// The runner finished between our snapshot and the write.
		return nil
	}

	m.registry.MarkTerminal(id, model.JobStatusFailed)
	m.registry.Remove(id)
	m.logger.WarnContext(ctx, "stalled job failed", "job_id", id, "quiet", quiet)
	obsmetrics.EmitJobLifecycle(m.metrics, obsmetrics.JobMetric{
		Transition: "stalled",
		Result:     obsmetrics.ResultSuccess,
	})
	return nil
}

// waitWithJitter sleeps up to 10% of interval, or until ctx is done.
func waitWithJitter(ctx context.Context, interval time.Duration) {
	maxJitter := int64(interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
