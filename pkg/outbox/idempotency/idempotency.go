// Package idempotency deduplicates at-least-once deliveries for a single
// consumer. Each event ID is claimed once per TTL window in Redis.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partyshop-backend/pkg/redis"
)

// Guard claims event IDs on behalf of one named consumer. Keys look like
// ps:idempotency:consumer:<name>:<event_id>.
type Guard struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
}

var errEventIDRequired = errors.New("event id is required")

func NewGuard(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

// Claim reports whether this call is the first to see eventID. A false result
// means another delivery already handled (or is handling) the event.
func (g *Guard) Claim(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errEventIDRequired
	}
	return g.store.SetNX(ctx, g.key(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release gives up a claim so a redelivered event is processed again.
func (g *Guard) Release(ctx context.Context, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return errEventIDRequired
	}
	return g.store.Del(ctx, g.key(eventID))
}

func (g *Guard) key(eventID uuid.UUID) string {
	return g.store.IdempotencyKey("consumer:"+g.consumer, eventID.String())
}
