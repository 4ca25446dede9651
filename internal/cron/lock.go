package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock makes a cron cycle exclusive. Acquire reports false, not an error,
// when another holder has it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a lease keyed by a per-acquire token. The lease expires on its
// own if the worker dies, and Release only deletes the key while it still
// carries this holder's token.
type RedisLock struct {
	store lockStore
	key   string
	lease time.Duration

	mu    sync.Mutex
	token string
}

func NewRedisLock(store lockStore, key string, lease time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if lease <= 0 {
		lease = 30 * time.Minute
	}
	return &RedisLock{store: store, key: key, lease: lease}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.lease)
	if err != nil {
		return false, fmt.Errorf("take lease %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("drop lease %s: %w", l.key, err)
	}
	return nil
}

// LocalLock only excludes goroutines of this process. The API container uses
// it for jobs whose state lives in memory.
type LocalLock struct {
	slot chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{slot: make(chan struct{}, 1)}
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	select {
	case l.slot <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *LocalLock) Release(context.Context) error {
	select {
	case <-l.slot:
	default:
	}
	return nil
}
