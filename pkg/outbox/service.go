package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

// DomainEvent is what services hand to Emit inside their own transaction.
// A zero Version or OccurredAt is filled in when the event is sealed.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	aggregate, known := enums.AggregateFor(e.EventType)
	switch {
	case !known:
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	case aggregate != e.AggregateType:
		return fmt.Errorf("event %s belongs to aggregate %s, not %s", e.EventType, aggregate, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("event %s has no aggregate id", e.EventType)
	}
	return nil
}

// seal renders the envelope under eventID.
func (e DomainEvent) seal(eventID uuid.UUID) (json.RawMessage, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", e.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    max(e.Version, CurrentVersion),
		EventID:    eventID.String(),
		OccurredAt: e.OccurredAt,
		Actor:      e.Actor,
		Data:       data,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.EventType, err)
	}
	return raw, nil
}

type rowWriter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	rows rowWriter
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{rows: repo, logg: logg}
}

// Emit appends the event through tx so it commits or rolls back with the
// caller's state change. The row ID is also the envelope event ID that
// consumers deduplicate on.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}
	id := uuid.New()
	payload, err := event.seal(id)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := s.rows.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       id.String(),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
