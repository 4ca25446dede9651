package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
)

// Delivery is a consumed record with its headers flattened.
type Delivery struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Handler returns nil only when processing succeeded and the offset may be committed.
type Handler func(ctx context.Context, d Delivery) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group with manual commits.
type Consumer struct {
	reader messageReader
}

func NewConsumer(cfg config.KafkaConfig) (*Consumer, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}
	if cfg.OrdersTopic == "" || cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka topic and consumer group are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.OrdersTopic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &Consumer{reader: reader}, nil
}

// Receive blocks until ctx is done. A handler error leaves the offset
// uncommitted and is returned so the caller can restart and redeliver.
func (c *Consumer) Receive(ctx context.Context, h Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if err := h(ctx, toDelivery(msg)); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func toDelivery(msg kafka.Message) Delivery {
	attrs := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		attrs[h.Key] = string(h.Value)
	}
	return Delivery{Key: string(msg.Key), Data: msg.Value, Attributes: attrs}
}
