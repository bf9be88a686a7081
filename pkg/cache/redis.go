package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis shares cached values between processes. Values are encoded with codec.
type Redis[T any] struct {
	client infra.RedisClient
	codec  infra.Codec
	group  singleflight.Group
	prefix string
}

func NewRedis[T any](client infra.RedisClient, prefix string, codec infra.Codec) *Redis[T] {
	if codec == nil {
		codec = infra.JSON
	}
	return &Redis[T]{client: client, codec: codec, prefix: prefix}
}

func (r *Redis[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error) {
	k := prefixed(r.prefix, key)
	var zero T

	v, err, _ := r.group.Do(k, func() (any, error) {
		raw, err := r.client.Get(ctx, k)
		switch {
		case err == nil:
			var cached T
			if err := r.codec.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
			logger.Warn("Dropping undecodable cache entry", "key", k)
		case !errors.Is(err, redis.Nil):
			// a cache outage must not block the computation
			logger.Warn("Redis cache read failed", "key", k, "error", err)
		}

		v, err := load(ctx)
		if err != nil {
			return zero, err
		}
		if ttl > 0 {
			data, err := r.codec.Marshal(v)
			if err != nil {
				return zero, fmt.Errorf("encode cache entry %s: %w", k, err)
			}
			if err := r.client.Set(ctx, k, data, ttl); err != nil {
				logger.Warn("Redis cache write failed", "key", k, "error", err)
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (r *Redis[T]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, prefixed(r.prefix, key))
}

// Close leaves the shared client open; its owner closes it.
func (r *Redis[T]) Close() {}
