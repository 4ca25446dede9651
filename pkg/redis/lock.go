package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockWait  = 3 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// ErrLockNotAcquired is returned when the lock stays taken for the whole wait budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// Locker serializes work per (scope, id) across every API instance sharing the
// same Redis. Locks expire after ttl so a crashed holder cannot wedge an owner.
type Locker struct {
	store lockStore
	ttl   time.Duration
	wait  time.Duration
}

// NewLocker builds a Locker. Zero durations fall back to the defaults.
func NewLocker(store lockStore, ttl, wait time.Duration) (*Locker, error) {
	if store == nil {
		return nil, errors.New("redis store required for locker")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &Locker{store: store, ttl: ttl, wait: wait}, nil
}

// WithLock runs fn while holding the lock for scope/id.
func (l *Locker) WithLock(ctx context.Context, scope, id string, fn func(ctx context.Context) error) error {
	key := l.store.LockKey(scope, id)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// release on a fresh context so a canceled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = l.store.DelIfValue(releaseCtx, key, token)
	}()

	return fn(ctx)
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		timer := time.NewTimer(lockRetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// LocalLocker offers the WithLock contract inside a single process. It backs
// tests and single-instance deployments without Redis.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &LocalLocker{slots: map[string]*localSlot{}, wait: wait}
}

func (l *LocalLocker) WithLock(ctx context.Context, scope, id string, fn func(ctx context.Context) error) error {
	key := scope + ":" + id
	slot := l.retain(key)
	defer l.release(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot.ch }()

	return fn(ctx)
}

func (l *LocalLocker) retain(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := l.slots[key]
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}
