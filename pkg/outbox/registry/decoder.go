package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/partyshop-backend/pkg/enums"
	"github.com/angelmondragon/partyshop-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder turns the envelope data of one event version into its typed payload.
type Decoder func(data json.RawMessage) (any, error)

type schema struct {
	eventType enums.OutboxEventType
	version   int
}

// orderSchemas lists every order event payload by version. Adding a v2 means
// appending a row here; older versions stay decodable while rows drain.
var orderSchemas = []struct {
	schema
	decode Decoder
}{
	{schema{enums.EventOrderCreated, 1}, decodeAs[payloads.OrderCreatedEvent]},
	{schema{enums.EventOrderStatusChanged, 1}, decodeAs[payloads.OrderStatusChangedEvent]},
	{schema{enums.EventOrderCancelled, 1}, decodeAs[payloads.OrderCancelledEvent]},
	{schema{enums.EventOrderDeleted, 1}, decodeAs[payloads.OrderDeletedEvent]},
}

// DecoderRegistry is safe for concurrent Decode and Register calls.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[schema]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[schema]Decoder{}}
}

// NewOrderDecoderRegistry knows every version of every order event.
func NewOrderDecoderRegistry() *DecoderRegistry {
	r := NewDecoderRegistry()
	for _, row := range orderSchemas {
		r.Register(row.eventType, row.version, row.decode)
	}
	return r
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	r.decoders[schema{eventType, version}] = decode
	r.mu.Unlock()
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[schema{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return decode(data)
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}
