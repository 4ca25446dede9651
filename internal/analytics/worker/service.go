package worker

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/internal/analytics/router"
	"github.com/angelmondragon/partyshop-backend/internal/analytics/types"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

var errRedeliver = errors.New("order event must be redelivered")

// Handler turns an order envelope into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// eventGuard claims an event ID for the analytics consumer.
type eventGuard interface {
	Claim(ctx context.Context, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

// Service feeds broker deliveries through the event guard into a Handler.
type Service struct {
	source  Source
	handler Handler
	guard   eventGuard
	logg    *logger.Logger
}

func NewService(source Source, handler Handler, guard eventGuard, logg *logger.Logger) (*Service, error) {
	switch {
	case source == nil:
		return nil, errors.New("analytics source is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case guard == nil:
		return nil, errors.New("idempotency guard is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{source: source, handler: handler, guard: guard, logg: logg}, nil
}

// Run consumes until ctx is done or the source fails.
func (s *Service) Run(ctx context.Context) error {
	return s.source.Receive(ctx, func(msgCtx context.Context, msg Message) error {
		if s.process(msgCtx, msg) {
			return errRedeliver
		}
		return nil
	})
}

// process reports whether msg should be redelivered. Messages that can never
// succeed are logged and acknowledged.
func (s *Service) process(ctx context.Context, msg Message) bool {
	envelope, err := decodeEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		}), "invalid order event envelope")
		return false
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
		"occurred_at":  envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return false
	}

	first, err := s.guard.Claim(logCtx, eventID)
	switch {
	case err != nil:
		s.logg.Error(logCtx, "idempotency check failed", err)
		return true
	case !first:
		s.logg.Info(logCtx, "event already processed")
		return false
	}

	err = s.handler.Handle(logCtx, envelope)
	switch {
	case err == nil:
		s.logg.Info(logCtx, "order event handled")
		return false
	case errors.Is(err, router.ErrUnsupportedEventType), errors.Is(err, router.ErrMalformedPayload):
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undeliverable order event")
		return false
	}
	s.logg.Error(logCtx, "handler error", err)
	if releaseErr := s.guard.Release(logCtx, eventID); releaseErr != nil {
		s.logg.Error(logCtx, "failed to clear idempotency key", releaseErr)
	}
	return true
}

// decodeEnvelope merges the outbox payload envelope with broker attributes.
// The body wins for event id and occurrence time; attributes are the fallback.
func decodeEnvelope(msg Message) (types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	env := types.Envelope{
		EventID:       cmp.Or(strings.TrimSpace(body.EventID), attr("event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attr("aggregate_id"),
		Version:       body.Version,
		OccurredAt:    body.OccurredAt,
		Payload:       body.Data,
	}
	if env.AggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}
	if env.EventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}
	if env.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			env.OccurredAt = created
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}
