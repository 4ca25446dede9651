package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/partyshop-backend/internal/cart"
	"github.com/angelmondragon/partyshop-backend/internal/cron"
	"github.com/angelmondragon/partyshop-backend/internal/favorites"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/metrics"
	"github.com/angelmondragon/partyshop-backend/pkg/migrate"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

const (
	serviceKind  = "cron-worker"
	dailyCadence = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.FromConfig(serviceKind, cfg.App)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry, err := dailyJobs(cfg, logg, dbClient)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	// The lease outlives a slow cycle but lapses before the next tick.
	lock, err := cron.NewRedisLock(redisClient, "ps:cron-worker:lock:"+cmpEnv(cfg.App.Env), cfg.Cron.Interval)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	runCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})
	logg.Info(runCtx, "starting cron worker")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// dailyJobs registers the housekeeping jobs that run once a day.
func dailyJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	builders := []func() (cron.Job, error){
		func() (cron.Job, error) {
			return cron.NewGuestCleanupJob(cron.GuestCleanupJobParams{
				Logger:        logg,
				Carts:         cart.NewRepository(conn),
				Favorites:     favorites.NewRepository(conn),
				RetentionDays: cfg.Cron.GuestRetentionDays,
			})
		},
		func() (cron.Job, error) {
			return cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
				Logger:      logg,
				DB:          dbClient,
				Outbox:      outbox.NewRepository(conn),
				DeadLetters: outbox.NewDLQRepository(conn),
				Retention:   cfg.Outbox.RetentionDays,
				MinAttempts: cfg.Outbox.MaxAttempts,
			})
		},
	}

	registry := cron.NewRegistry()
	for _, build := range builders {
		job, err := build()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job, dailyCadence); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func cmpEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
