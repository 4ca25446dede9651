// Package registry validates outbox rows before publishing and decodes order
// event payloads on the consuming side.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/db/models"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox"
)

// NonRetryableError marks a row that can never be published as stored. The
// publisher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventDescriptor says where an event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes every order event to one broker topic (a Pub/Sub
// topic ID or a Kafka topic).
type EventRegistry struct {
	topic    string
	decoders *DecoderRegistry
}

func NewEventRegistry(topic string) (*EventRegistry, error) {
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &EventRegistry{topic: topic, decoders: NewOrderDecoderRegistry()}, nil
}

// Resolve checks the row's type, aggregate and envelope and decodes the
// payload for the envelope's version. Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	aggregate, known := enums.AggregateFor(event.EventType)
	if !known {
		return nil, permanent("unsupported event type %s", event.EventType)
	}
	if event.AggregateType != aggregate {
		return nil, permanent("aggregate mismatch: %s carries %s, want %s", event.EventType, event.AggregateType, aggregate)
	}
	if event.AggregateID == uuid.Nil {
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", event.EventType)
	}
	version := envelope.Version
	if version <= 0 {
		version = outbox.CurrentVersion
	}
	payload, err := r.decoders.Decode(event.EventType, version, envelope.Data)
	if err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         r.topic,
		},
		Envelope: envelope,
		Payload:  payload,
	}, nil
}
