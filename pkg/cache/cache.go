// Package cache provides a bounded, TTL-evicting read-through cache with
// explicit invalidation hooks.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSize = 1024
	defaultTTL  = 5 * time.Minute
)

// Cache holds at most size entries; each expires ttl after it was written.
// Values must be treated as read-only by callers.
//
// Every invalidation bumps epoch. A load that started under an older epoch
// still answers its callers but is never stored.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group

	mu    sync.Mutex
	epoch uint64
}

func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = defaultSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// GetOrLoad returns the cached value for key or calls load once, even under
// concurrent misses for the same key. Load errors are not cached, and neither
// are results of loads overtaken by an invalidation.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.lru.Get(key); ok {
		return value, nil
	}
	started := c.currentEpoch()
	// Flights are per epoch so callers arriving after an invalidation never
	// join a load that began before it.
	flight := strconv.FormatUint(started, 10) + "|" + key
	result, err, _ := c.group.Do(flight, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		c.mu.Lock()
		if c.epoch == started {
			c.lru.Add(key, value)
		}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

func (c *Cache[V]) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Invalidate drops the given keys.
func (c *Cache[V]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for _, key := range keys {
		c.lru.Remove(key)
	}
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Purge empties the cache.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
