package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func orderResolution() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "order.events", AggregateType: enums.AggregateOrder},
		Payload:    &payloads.OrderCreatedEvent{},
	}
}

func TestDeliverClassifiesOutcomes(t *testing.T) {
	transient := errors.New("transient")
	cases := []struct {
		name       string
		attempts   int
		publishErr error
		resolveErr error
		want       outcome
		reason     enums.OutboxDLQErrorReason
	}{
		{name: "published", want: outcomePublished},
		{name: "transient failure retries", publishErr: transient, want: outcomeRetry},
		{name: "last attempt dead letters", attempts: 4, publishErr: transient, want: outcomeDeadLetter, reason: enums.OutboxDLQReasonMaxAttempts},
		{name: "non retryable publish", publishErr: registry.NewNonRetryableError(transient), want: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable},
		{name: "unresolvable row", resolveErr: registry.NewNonRetryableError(errors.New("bad payload")), want: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistry{resolved: orderResolution(), err: tc.resolveErr}
			if tc.resolveErr != nil {
				reg.resolved = nil
			}
			svc := newTestService(t, &fakeRepo{}, &fakePublisher{results: []error{tc.publishErr}}, reg, &fakeDLQRepo{}, nil)

			d := svc.deliver(context.Background(), orderEvent(t, tc.attempts))
			if d.result != tc.want {
				t.Fatalf("expected outcome %d, got %d", tc.want, d.result)
			}
			if d.reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, d.reason)
			}
		})
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	pub := &fakePublisher{results: []error{errors.New("transient"), nil}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolution()}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
}

func TestProcessBatchEmptyReportsIdle(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil || processed {
		t.Fatalf("expected idle batch, got processed=%v err=%v", processed, err)
	}
}

func TestMessageForKeysByAggregate(t *testing.T) {
	event := orderEvent(t, 0)
	event.EventType = enums.EventOrderStatusChanged
	event.CreatedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	resolved := orderResolution()
	resolved.Envelope.EventID = event.ID.String()

	msg := messageFor(event, resolved)
	if msg.Topic != "order.events" || msg.Key != event.AggregateID.String() {
		t.Fatalf("unexpected routing %q/%q", msg.Topic, msg.Key)
	}
	if msg.Attributes["event_type"] != "order_status_changed" || msg.Attributes["event_id"] != event.ID.String() {
		t.Fatalf("unexpected attributes %+v", msg.Attributes)
	}
	if msg.Attributes["created_at"] != "2026-05-01T10:00:00Z" {
		t.Fatalf("unexpected created_at %q", msg.Attributes["created_at"])
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatal("payload should be forwarded untouched")
	}
}

func TestRunFailsWhenBrokerUnreachable(t *testing.T) {
	pub := &fakePublisher{pingErr: errors.New("no brokers")}
	service := newTestService(t, &fakeRepo{}, pub, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	if err := service.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, reg, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not mirror the row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable || entry.ErrorMessage == nil {
		t.Fatalf("unexpected error details: %s %v", entry.ErrorReason, entry.ErrorMessage)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected row marked terminal, got %d", len(repo.failed))
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []error{errors.New("transient")}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolution()}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if reason := dlqRepo.entries[0].ErrorReason; reason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", reason)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub outbox.Publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            &fakeDB{},
		Publisher:     pub,
		Repository:    repo,
		Registry:      registry,
		DLQRepository: dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePublisher struct {
	results []error
	sent    []outbox.Message
	pingErr error
}

func (f *fakePublisher) Publish(_ context.Context, msg outbox.Message) error {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return err
}

func (f *fakePublisher) Ping(context.Context) error {
	return f.pingErr
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
