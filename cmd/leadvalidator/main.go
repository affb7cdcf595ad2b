package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/leadvalidator/leadvalidator/internal/bootstrap"
	"github.com/leadvalidator/leadvalidator/internal/migrate"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.IsDev)

	logger.InfoContext(ctx, "starting leadvalidator",
		"services", cfg.Services,
		"verifier_mode", cfg.Verifier.Mode,
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"redis_enabled", cfg.Redis.Enabled(),
	)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	db, err := bootstrap.ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = migrate.Run(ctx, db); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping migrations on startup, verifying schema version")
		if err = migrate.Verify(ctx, db); err != nil {
			return err
		}
	}

	containerOpts := bootstrap.ServiceContainerOptions{
		Config: cfg,
		Logger: logger,
		DB:     db,
	}

	if cfg.Redis.Enabled() {
		redisClient, rerr := bootstrap.ConnectRedis(cfg.Redis, logger)
		if rerr != nil {
			return rerr
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
		containerOpts.Redis = redisClient
	}

	container, err := bootstrap.NewServiceContainer(containerOpts)
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, container)
}
