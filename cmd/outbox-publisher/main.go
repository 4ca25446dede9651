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

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db"
	"github.com/angelmondragon/partyshop-backend/pkg/kafka"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/migrate"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/registry"
	"github.com/angelmondragon/partyshop-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

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
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
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

	publisher, topic, closer, err := newPublisher(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap broker publisher: %w", err)
	}
	defer func() { err = multierr.Append(err, closer.Close()) }()

	events, err := registry.NewEventRegistry(topic)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Publisher:     publisher,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"broker":      cfg.Eventing.Broker,
		"topic":       topic,
	})
	logg.Info(runCtx, "starting outbox publisher")
	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newPublisher opens the configured broker and returns the topic order
// events go to. The closer releases the broker connection.
func newPublisher(ctx context.Context, cfg *config.Config, logg *logger.Logger) (outbox.Publisher, string, io.Closer, error) {
	switch cfg.Eventing.Broker {
	case config.BrokerKafka:
		pub, err := kafka.NewPublisher(cfg.Kafka, logg)
		if err != nil {
			return nil, "", nil, err
		}
		return pub, cfg.Kafka.OrdersTopic, pub, nil
	case config.BrokerPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, pubsub.Resources{Topics: []string{cfg.PubSub.OrdersTopic}}, logg)
		if err != nil {
			return nil, "", nil, err
		}
		pub, err := pubsub.NewOutboxPublisher(client)
		if err != nil {
			return nil, "", nil, multierr.Append(err, client.Close())
		}
		return pub, cfg.PubSub.OrdersTopic, client, nil
	}
	return nil, "", nil, fmt.Errorf("unsupported eventing broker %q", cfg.Eventing.Broker)
}
