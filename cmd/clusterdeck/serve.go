package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clusterdeck/clusterdeck/internal/cache"
	"github.com/clusterdeck/clusterdeck/internal/config"
	"github.com/clusterdeck/clusterdeck/internal/database"
	"github.com/clusterdeck/clusterdeck/internal/handlers"
	"github.com/clusterdeck/clusterdeck/internal/ratelimit"
	"github.com/clusterdeck/clusterdeck/internal/repository"
	"github.com/clusterdeck/clusterdeck/internal/server"
	"github.com/clusterdeck/clusterdeck/pkg/logger"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending database migrations on startup")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, cfg.App.LogLevel)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Dependencies{Checks: map[string]handlers.CheckFunc{}}

	if cfg.DatabaseEnabled() {
		pool, err := database.NewPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if migrate {
			m, err := database.NewMigrator(pool)
			if err != nil {
				return err
			}
			n, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			log.Info("migrations applied", "count", n)
		}

		deps.Clusters = repository.NewPostgresClusterRepository(pool)
		deps.Tokens = repository.NewPostgresTokenRepository(pool)
		deps.Checks["postgres"] = pool.HealthCheck
		log.Info("using postgres storage", "host", cfg.Database.Host, "database", cfg.Database.Name)
	} else {
		log.Warn("database not configured, state is kept in memory")
	}

	if cfg.RedisEnabled() {
		rc, err := cache.NewRedisCache(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()

		if deps.Tokens != nil {
			deps.Tokens = repository.NewCachedTokenRepository(deps.Tokens,
				cache.NewTokenCache(rc, "token:", cfg.Redis.TokenTTL))
		}
		if cfg.Rate.Enabled {
			deps.Limiter = ratelimit.NewRedisLimiter(rc.Client(), ratelimit.Config{
				Requests: cfg.Rate.Requests,
				Window:   cfg.Rate.Window,
			}, "ratelimit:")
		}
		deps.Checks["redis"] = rc.HealthCheck
		log.Info("using redis", "host", cfg.Redis.Host)
	}

	srv := server.New(cfg, log, deps)
	if err := srv.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to install bootstrap token: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return errors.New("server stopped unexpectedly")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
