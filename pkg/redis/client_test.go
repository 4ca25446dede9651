package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/partyshop-backend/pkg/config"
)

// fakeRedis is an in-memory backend. Scripts are dispatched by SHA, so the
// server-side Lua never has to run.
type fakeRedis struct {
	redis.Scripter
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", nil) }

func (f *fakeRedis) Get(_ context.Context, k string) *redis.StringCmd {
	v, ok := f.data[k]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, k string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[k]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[k] = fmt.Sprint(value)
	f.ttls[k] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	k := keys[0]
	switch sha {
	case fixedWindow.Hash():
		n, _ := strconv.ParseInt(f.data[k], 10, 64)
		n++
		f.data[k] = strconv.FormatInt(n, 10)
		if n == 1 {
			f.ttls[k] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(n, nil)
	case compareAndDelete.Hash():
		if v, ok := f.data[k]; ok && v == fmt.Sprint(args[0]) {
			delete(f.data, k)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{store: fake}

	var allowed []bool
	for i := 0; i < 3; i++ {
		ok, hits, err := client.FixedWindowAllow(ctx, "ip:1.2.3.4", 2, 1500*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), hits)
		allowed = append(allowed, ok)
	}
	assert.Equal(t, []bool{true, true, false}, allowed)
	assert.Equal(t, 1500*time.Millisecond, fake.ttls["ps:rate_limit:ip:1.2.3.4"])
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "ps:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "ps:lock:cart:user:1", client.LockKey("cart", "user:1"))
	assert.Equal(t, "ps:lock:cart", client.LockKey("cart", " "))
}

func TestDelIfValueOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}

	ok, err := client.SetNX(ctx, "k", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := client.DelIfValue(ctx, "k", "owner-b")
	require.NoError(t, err)
	assert.False(t, removed, "foreign owner must not remove the key")

	removed, err = client.DelIfValue(ctx, "k", "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = client.Get(ctx, "k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	ctx := context.Background()
	assert.ErrorIs(t, c.Ping(ctx), errNotInitialized)
	_, _, err := c.FixedWindowAllow(ctx, "x", 1, time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, c.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 20, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
