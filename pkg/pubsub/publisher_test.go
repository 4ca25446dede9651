package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "server-id", r.err }

type fakeTopic struct {
	got *pubsub.Message
	err error
}

func (f *fakeTopic) Publish(_ context.Context, msg *pubsub.Message) publishResult {
	f.got = msg
	return fakeResult{err: f.err}
}

func TestOutboxPublisherMapsMessage(t *testing.T) {
	topic := &fakeTopic{}
	p := &OutboxPublisher{topics: func(name string) topicPublisher {
		if name != "orders" {
			t.Fatalf("unexpected topic %q", name)
		}
		return topic
	}}

	err := p.Publish(context.Background(), outbox.Message{
		Topic:      "orders",
		Key:        "order-1",
		Data:       []byte(`{"x":1}`),
		Attributes: map[string]string{"event_type": "order_created"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if string(topic.got.Data) != `{"x":1}` || topic.got.Attributes["key"] != "order-1" {
		t.Fatalf("unexpected message %+v", topic.got)
	}
	if topic.got.Attributes["event_type"] != "order_created" {
		t.Fatalf("attributes not copied: %+v", topic.got.Attributes)
	}
}

func TestOutboxPublisherSurfacesErrors(t *testing.T) {
	boom := errors.New("unavailable")
	p := &OutboxPublisher{topics: func(string) topicPublisher { return &fakeTopic{err: boom} }}
	if err := p.Publish(context.Background(), outbox.Message{Topic: "orders"}); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}

	missing := &OutboxPublisher{topics: func(string) topicPublisher { return nil }}
	if err := missing.Publish(context.Background(), outbox.Message{Topic: "orders"}); err == nil {
		t.Fatal("expected missing topic to fail")
	}
}

func TestResourceNames(t *testing.T) {
	if got := resourceName("proj", "topics", "orders"); got != "projects/proj/topics/orders" {
		t.Fatalf("unexpected topic name %q", got)
	}
	if got := resourceName("proj", "subscriptions", "projects/x/subscriptions/y"); got != "projects/x/subscriptions/y" {
		t.Fatalf("full names should pass through, got %q", got)
	}
	if got := resourceName("proj", "subscriptions", "  "); got != "" {
		t.Fatalf("blank name should be empty, got %q", got)
	}
	if got := resourceName("", "topics", "orders"); got != "" {
		t.Fatalf("short name without project should be empty, got %q", got)
	}
}

func TestDescribeLookup(t *testing.T) {
	if err := describeLookup("topic", "orders", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := describeLookup("topic", "orders", status.Error(codes.NotFound, "gone"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected not-found message, got %v", err)
	}
	boom := errors.New("boom")
	if err := describeLookup("subscription", "orders-analytics", boom); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
