package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRedis answers EXISTS and SET from a map and records the TTLs.
type stubRedis struct {
	redis.UniversalClient
	keys map[string]time.Duration
	err  error
}

func newStubRedis() *stubRedis {
	return &stubRedis{keys: make(map[string]time.Duration)}
}

func (s *stubRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "exists")
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := s.keys[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	s.keys[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func TestRedisRemember(t *testing.T) {
	ctx := context.Background()
	client := newStubRedis()
	w := NewRedis(client, 24*time.Hour)

	seen, err := w.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, w.Remember(ctx, "op-1"))
	assert.Equal(t, map[string]time.Duration{"engine:op:op-1": 24 * time.Hour}, client.keys)

	seen, err = w.Seen(ctx, "op-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = w.Seen(ctx, "op-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")
	client := newStubRedis()
	client.err = down
	w := NewRedis(client, time.Minute)

	_, err := w.Seen(ctx, "op-1")
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "redis exists")

	err = w.Remember(ctx, "op-1")
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "redis set")
}
