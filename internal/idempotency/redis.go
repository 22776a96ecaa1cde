package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"engine/internal/errors"
)

const defaultRedisPrefix = "engine:op:"

// Redis keeps ids as expiring keys, so the window is shared by every engine
// instance pointed at the same server and survives restarts.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ Window = (*Redis)(nil)

// NewRedis creates a window whose entries expire after ttl.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		prefix: defaultRedisPrefix,
	}
}

func (r *Redis) Seen(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+id).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}

func (r *Redis) Remember(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, r.prefix+id, 1, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
