package worker

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/partyshop-backend/pkg/kafka"
)

// Message is a broker-neutral delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Source delivers messages to fn until ctx is done. A non-nil return from fn
// asks the broker to redeliver the message.
type Source interface {
	Receive(ctx context.Context, fn func(ctx context.Context, msg Message) error) error
}

// PubSubSource acks or nacks each Pub/Sub message individually.
type PubSubSource struct {
	sub *gcppubsub.Subscriber
}

func NewPubSubSource(sub *gcppubsub.Subscriber) (*PubSubSource, error) {
	if sub == nil {
		return nil, errors.New("pubsub subscriber is required")
	}
	return &PubSubSource{sub: sub}, nil
}

func (s *PubSubSource) Receive(ctx context.Context, fn func(ctx context.Context, msg Message) error) error {
	return s.sub.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if err := fn(innerCtx, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes}); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type kafkaReceiver interface {
	Receive(ctx context.Context, h kafka.Handler) error
}

// KafkaSource commits offsets only after success. A failed message stops the
// consumer so the process restarts from the last committed offset.
type KafkaSource struct {
	consumer kafkaReceiver
}

func NewKafkaSource(consumer kafkaReceiver) (*KafkaSource, error) {
	if consumer == nil {
		return nil, errors.New("kafka consumer is required")
	}
	return &KafkaSource{consumer: consumer}, nil
}

func (s *KafkaSource) Receive(ctx context.Context, fn func(ctx context.Context, msg Message) error) error {
	return s.consumer.Receive(ctx, func(innerCtx context.Context, d kafka.Delivery) error {
		id := d.Attributes["event_id"]
		if id == "" {
			id = d.Key
		}
		return fn(innerCtx, Message{ID: id, Data: d.Data, Attributes: d.Attributes})
	})
}
