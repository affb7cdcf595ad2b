package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/leadvalidator/leadvalidator/config"
	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/data"
	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
	"github.com/leadvalidator/leadvalidator/internal/registry"
	"github.com/leadvalidator/leadvalidator/internal/service"
	"github.com/leadvalidator/leadvalidator/internal/verify"
)

// ServiceContainerOptions groups the external resources services depend on.
type ServiceContainerOptions struct {
	Config config.AppConfig
	Logger *slog.Logger
	DB     *sql.DB
	Redis  redis.UniversalClient // nil when Redis is not configured
}

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Config   config.AppConfig
	Logger   *slog.Logger
	Registry *registry.Registry

	Jobs      *service.JobService
	Monitor   *service.StallMonitor
	Retention *service.RetentionService
	Metrics   *statsd.Client

	runnerCancel context.CancelFunc
}

// NewServiceContainer wires repositories, the verification pipeline and the
// application services from the given resources.
func NewServiceContainer(opts ServiceContainerOptions) (*ServiceContainer, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsSink, err := statsd.NewClient(statsd.Config{
		Address: cfg.Observability.StatsdAddress,
		Prefix:  "leadvalidator",
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	lists, err := config.LoadLists(cfg.Verifier.ListsFile)
	if err != nil {
		return nil, fmt.Errorf("load verification lists: %w", err)
	}

	var cache core.DomainCache
	if opts.Redis != nil {
		cache = data.NewRedisDomainCache(opts.Redis)
	} else {
		cache = data.NewMemoryDomainCache(nil)
	}

	verifier, err := buildVerifier(cfg, lists, cache, logger)
	if err != nil {
		return nil, err
	}

	jobRepo := data.NewJobRepo(opts.DB, logger)
	resultRepo := data.NewResultRepo(opts.DB, logger)
	retentionRepo := data.NewRetentionRepo(opts.DB, logger, nil)

	reg := registry.New(nil)

	// Runners outlive individual requests; they stop when the container
	// shuts down.
	runnerCtx, runnerCancel := context.WithCancel(context.Background())

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Jobs:        jobRepo,
		Results:     resultRepo,
		Registry:    reg,
		Verifier:    verifier,
		Config:      cfg.Jobs,
		BaseContext: runnerCtx,
		Logger:      logger,
		Metrics:     metricsSink,
	})
	if err != nil {
		runnerCancel()
		return nil, fmt.Errorf("init job service: %w", err)
	}

	monitor, err := service.NewStallMonitor(service.StallMonitorOptions{
		Repo:     jobRepo,
		Registry: reg,
		Config:   cfg.Monitor,
		Logger:   logger,
		Metrics:  metricsSink,
	})
	if err != nil {
		runnerCancel()
		return nil, fmt.Errorf("init stall monitor: %w", err)
	}

	retention, err := service.NewRetentionService(service.RetentionServiceOptions{
		Repo:    retentionRepo,
		Config:  cfg.Retention,
		Logger:  logger,
		Metrics: metricsSink,
	})
	if err != nil {
		runnerCancel()
		return nil, fmt.Errorf("init retention service: %w", err)
	}

	return &ServiceContainer{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Jobs:         jobs,
		Monitor:      monitor,
		Retention:    retention,
		Metrics:      metricsSink,
		runnerCancel: runnerCancel,
	}, nil
}

func buildVerifier(cfg config.AppConfig, lists config.Lists, cache core.DomainCache, logger *slog.Logger) (verify.Verifier, error) {
	if cfg.Verifier.Mode == config.VerifierModeMock {
		logger.Info("verification running in mock mode, no network probes will be made")
		return verify.NewMockVerifier(lists, cfg.Scoring, logger), nil
	}

	pipeline, err := verify.NewPipeline(verify.PipelineOptions{
		Config:   cfg.Verifier,
		Scoring:  cfg.Scoring,
		Lists:    lists,
		Cache:    cache,
		Resolver: verify.NewDNSResolver(),
		Prober: &verify.DialProber{
			HelloDomain: cfg.Verifier.SMTPHello,
			From:        cfg.Verifier.SMTPFrom,
			Timeout:     cfg.Verifier.NetworkTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init verification pipeline: %w", err)
	}
	return pipeline, nil
}

// Shutdown stops all job runners and releases container-owned resources.
func (c *ServiceContainer) Shutdown() {
	c.runnerCancel()
	if err := c.Metrics.Close(); err != nil {
		c.Logger.Warn("closing metrics client", "error", err)
	}
}

// RunServicesWithShutdown reconciles orphaned jobs, starts the enabled
// background services, and blocks until a signal or a service error. Returns
// nil on graceful shutdown.
func RunServicesWithShutdown(ctx context.Context, c *ServiceContainer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer c.Shutdown()

	// Jobs left queued or running by a previous process can never make
	// progress again; fail them before admitting new work.
	if _, err := c.Jobs.ReconcileOrphans(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if c.Config.IsMonitorEnabled() {
		g.Go(func() error { return c.Monitor.Run(gctx) })
	}
	if c.Config.IsRetentionEnabled() {
		g.Go(func() error { return c.Retention.Run(gctx) })
	}

	c.Logger.InfoContext(ctx, "services started", "services", c.Config.Services)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
