package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// OutboxPublisher adapts the client to outbox.Publisher. Publish blocks until
// Pub/Sub returns a server message ID.
type OutboxPublisher struct {
	client *Client
	topics func(name string) topicPublisher
}

func NewOutboxPublisher(client *Client) (*OutboxPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	return &OutboxPublisher{
		client: client,
		topics: func(name string) topicPublisher {
			p := client.Publisher(name)
			if p == nil {
				return nil
			}
			return gcpPublisher{p}
		},
	}, nil
}

func (p *OutboxPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	pub := p.topics(msg.Topic)
	if pub == nil {
		return fmt.Errorf("publisher not configured for topic %s", msg.Topic)
	}
	result := pub.Publish(ctx, toPubSubMessage(msg))
	if result == nil {
		return fmt.Errorf("publisher returned nil for topic %s", msg.Topic)
	}
	_, err := result.Get(ctx)
	return err
}

func (p *OutboxPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// toPubSubMessage carries the partition key as an attribute; ordering keys
// need message ordering enabled on the publisher, which we do not rely on.
func toPubSubMessage(msg outbox.Message) *pubsub.Message {
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	if msg.Key != "" {
		attrs["key"] = msg.Key
	}
	return &pubsub.Message{
		Data:       msg.Data,
		Attributes: attrs,
	}
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
