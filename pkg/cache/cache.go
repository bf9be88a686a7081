package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/config"
	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/infra"
)

// Loader computes a value on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache is a read-through cache with per-entry TTL.
type Cache[T any] interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error)
	Delete(ctx context.Context, key string) error
	Close()
}

// New builds the configured cache backend; redis may be nil for the memory backend.
func New[T any](cfg config.CacheConfig, redis infra.RedisClient) (Cache[T], error) {
	switch cfg.Backend {
	case enum.CacheBackendMemory, "":
		return NewMemory[T](cfg.MaxCost, cfg.KeyPrefix)
	case enum.CacheBackendRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis client")
		}
		return NewRedis[T](redis, cfg.KeyPrefix, infra.JSON), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
