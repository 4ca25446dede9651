package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/partyshop-backend/internal/analytics/types"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/registry"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported order event type")
	ErrMalformedPayload     = errors.New("malformed order event payload")
)

// Writer delivers BigQuery rows produced by the handlers.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router dispatches order envelopes to the handler registered per event type.
type Router struct {
	decoders *registry.DecoderRegistry
	handlers map[enums.OutboxEventType]Handler
	logg     *logger.Logger
}

// NewRouter wires the default row builders and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated:       newRowHandler(writer, logg, buildCreatedRow),
		enums.EventOrderStatusChanged: newRowHandler(writer, logg, buildStatusChangedRow),
		enums.EventOrderCancelled:     newRowHandler(writer, logg, buildCancelledRow),
		enums.EventOrderDeleted:       newRowHandler(writer, logg, buildDeletedRow),
	}
	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		decoders: registry.NewOrderDecoderRegistry(),
		handlers: handlers,
		logg:     logg,
	}, nil
}

// Handle decodes the payload for its version and runs the matching handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrMalformedPayload, envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.PayloadVersion(), envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformedPayload, envelope.EventType, err)
	}
	return handler.Handle(ctx, envelope, payload)
}
