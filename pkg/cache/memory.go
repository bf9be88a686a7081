package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

type Memory[T any] struct {
	cache  *ristretto.Cache[string, T]
	group  singleflight.Group
	prefix string
}

func NewMemory[T any](maxEntries int64, prefix string) (*Memory[T], error) {
	if maxEntries <= 0 {
		maxEntries = 1 << 10
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Memory[T]{cache: c, prefix: prefix}, nil
}

// GetOrCompute collapses concurrent misses on the same key into one load.
func (m *Memory[T]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error) {
	k := prefixed(m.prefix, key)
	if v, ok := m.cache.Get(k); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(k, func() (any, error) {
		if v, ok := m.cache.Get(k); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if ttl > 0 {
			m.cache.SetWithTTL(k, v, 1, ttl)
			m.cache.Wait()
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (m *Memory[T]) Delete(_ context.Context, key string) error {
	m.cache.Del(prefixed(m.prefix, key))
	return nil
}

func (m *Memory[T]) Close() {
	m.cache.Close()
}
