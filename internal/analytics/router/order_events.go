package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/partyshop-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/partyshop-backend/internal/analytics/writer"
	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/payloads"
)

type rowBuilder func(envelope types.Envelope, payload any) (types.OrderEventRow, error)

type rowHandler struct {
	writer Writer
	logg   *logger.Logger
	build  rowBuilder
}

func newRowHandler(writer Writer, logg *logger.Logger, build rowBuilder) Handler {
	return &rowHandler{writer: writer, logg: logg, build: build}
}

func (h *rowHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	row, err := h.build(envelope, payload)
	if err != nil {
		return err
	}

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_id":     row.OrderID,
		"order_number": row.OrderNumber,
	})
	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	h.logg.Debug(logCtx, "order event row inserted")
	return nil
}

func buildCreatedRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return types.OrderEventRow{}, fmt.Errorf("%w: unexpected payload type for %s", ErrMalformedPayload, envelope.EventType)
	}
	row, err := baseRow(envelope, event)
	if err != nil {
		return row, err
	}
	items, err := analyticswriter.EncodeJSON(event.Lines)
	if err != nil {
		return row, fmt.Errorf("encode items json: %w", err)
	}

	row.OrderID = event.OrderID.String()
	row.OrderNumber = event.OrderNumber
	row.UserID = event.UserID.String()
	row.Status = string(event.Status)
	row.TotalAmount = stringPtr(event.TotalAmount)
	row.ParticipantCount = int64Ptr(int64(len(event.Participants)))
	row.ItemCount = int64Ptr(itemCount(event.Lines))
	row.Items = items
	return row, nil
}

func buildStatusChangedRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return types.OrderEventRow{}, fmt.Errorf("%w: unexpected payload type for %s", ErrMalformedPayload, envelope.EventType)
	}
	row, err := baseRow(envelope, event)
	if err != nil {
		return row, err
	}
	row.OrderID = event.OrderID.String()
	row.OrderNumber = event.OrderNumber
	row.UserID = event.UserID.String()
	row.Status = string(event.To)
	row.PreviousStatus = stringPtr(string(event.From))
	row.TotalAmount = stringPtr(event.TotalAmount)
	return row, nil
}

func buildCancelledRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderCancelledEvent)
	if !ok {
		return types.OrderEventRow{}, fmt.Errorf("%w: unexpected payload type for %s", ErrMalformedPayload, envelope.EventType)
	}
	row, err := baseRow(envelope, event)
	if err != nil {
		return row, err
	}
	row.OrderID = event.OrderID.String()
	row.OrderNumber = event.OrderNumber
	row.UserID = event.UserID.String()
	row.Status = string(enums.OrderStatusCancelled)
	row.PreviousStatus = stringPtr(string(enums.OrderStatusPending))
	row.TotalAmount = stringPtr(event.TotalAmount)
	row.CancelReason = stringPtr(event.Reason)
	return row, nil
}

func buildDeletedRow(envelope types.Envelope, payload any) (types.OrderEventRow, error) {
	event, ok := payload.(*payloads.OrderDeletedEvent)
	if !ok {
		return types.OrderEventRow{}, fmt.Errorf("%w: unexpected payload type for %s", ErrMalformedPayload, envelope.EventType)
	}
	row, err := baseRow(envelope, event)
	if err != nil {
		return row, err
	}
	row.OrderID = event.OrderID.String()
	row.OrderNumber = event.OrderNumber
	row.UserID = event.UserID.String()
	row.Status = string(event.Status)
	return row, nil
}

func baseRow(envelope types.Envelope, event any) (types.OrderEventRow, error) {
	raw, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return types.OrderEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	return types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		Payload:    raw,
	}, nil
}

func itemCount(lines []payloads.OrderLine) int64 {
	var total int64
	for _, line := range lines {
		total += int64(line.Quantity)
	}
	return total
}

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func int64Ptr(value int64) *int64 {
	return &value
}
