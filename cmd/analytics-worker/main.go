package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/partyshop-backend/internal/analytics/router"
	"github.com/angelmondragon/partyshop-backend/internal/analytics/worker"
	"github.com/angelmondragon/partyshop-backend/internal/analytics/writer"
	"github.com/angelmondragon/partyshop-backend/pkg/bigquery"
	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/kafka"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/partyshop-backend/pkg/pubsub"
	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

const (
	serviceKind = "analytics-worker"
	// analyticsConsumer scopes idempotency claims made by this worker.
	analyticsConsumer = "analytics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.FromConfig(serviceKind, cfg.App)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	if err != nil {
		return fmt.Errorf("bigquery client: %w", err)
	}
	defer func() { err = multierr.Append(err, bqClient.Close()) }()

	source, closer, err := newSource(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("order events source: %w", err)
	}
	defer func() { err = multierr.Append(err, closer.Close()) }()

	guard, err := idempotency.NewGuard(redisClient, analyticsConsumer, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency guard: %w", err)
	}

	rows, err := writer.New(bqClient, writer.Config{
		OrderEventsTable: cfg.BigQuery.OrderEventsTable,
		BatchSize:        cfg.BigQuery.InsertBatchSize,
		MaxRetries:       cfg.BigQuery.InsertRetries,
	})
	if err != nil {
		return fmt.Errorf("bigquery writer: %w", err)
	}
	// Runs after the consumer stops; ctx is already cancelled by then.
	defer func() {
		if flushErr := rows.Flush(context.WithoutCancel(ctx)); flushErr != nil {
			err = multierr.Append(err, fmt.Errorf("flush buffered rows: %w", flushErr))
		}
	}()

	routes, err := router.NewRouter(rows, logg, nil)
	if err != nil {
		return fmt.Errorf("analytics router: %w", err)
	}
	service, err := worker.NewService(source, routes, guard, logg)
	if err != nil {
		return fmt.Errorf("analytics worker: %w", err)
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"broker":      cfg.Eventing.Broker,
	})
	logg.Info(runCtx, "analytics worker ready")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSource opens the consumer for the configured broker.
func newSource(ctx context.Context, cfg *config.Config, logg *logger.Logger) (worker.Source, io.Closer, error) {
	switch cfg.Eventing.Broker {
	case config.BrokerKafka:
		consumer, err := kafka.NewConsumer(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		source, err := worker.NewKafkaSource(consumer)
		if err != nil {
			return nil, nil, multierr.Append(err, consumer.Close())
		}
		return source, consumer, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, pubsub.Resources{Subscriptions: []string{cfg.PubSub.OrdersSubscription}}, logg)
		if err != nil {
			return nil, nil, err
		}
		source, err := worker.NewPubSubSource(client.Subscriber(cfg.PubSub.OrdersSubscription))
		if err != nil {
			return nil, nil, multierr.Append(err, client.Close())
		}
		return source, client, nil
	}
	return nil, nil, fmt.Errorf("unsupported eventing broker %q", cfg.Eventing.Broker)
}
