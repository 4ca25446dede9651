// Package kafka wires segmentio/kafka-go as an alternative event broker for
// order events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

var errBrokersRequired = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes outbox messages synchronously, waiting for all in-sync
// replicas, so a returned nil means the event is durable.
type Publisher struct {
	writer  messageWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

func NewPublisher(cfg config.KafkaConfig, logg *logger.Logger) (*Publisher, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errBrokersRequired
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", strings.Join(brokers, ",")), "kafka publisher initialized")
	}
	return &Publisher{writer: writer, brokers: brokers, dial: kafka.DialContext}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	if strings.TrimSpace(msg.Topic) == "" {
		return errors.New("kafka topic is required")
	}
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

// Ping opens and closes a connection to the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errBrokersRequired
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toKafkaMessage(msg outbox.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    time.Now().UTC(),
	}
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
