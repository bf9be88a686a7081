package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Basic(t *testing.T) {
	// 1 token per 100ms, 5 in the bucket
	rl := NewRateLimiter(100*time.Millisecond, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx), "token %d", i+1)
	}

	start := time.Now()
	require.NoError(t, rl.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	rl := NewRateLimiter(100*time.Millisecond, 2)

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire(), "third token must be refused")

	_, capacity, interval := rl.GetStats()
	assert.Equal(t, 2, capacity)
	assert.Equal(t, 100*time.Millisecond, interval)
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiterFromRPS(1, 1)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestPooledRateLimiter(t *testing.T) {
	prl := NewPooledRateLimiter(10, 2, time.Minute)

	// each key has its own bucket
	assert.True(t, prl.TryAcquire("user-1"))
	assert.True(t, prl.TryAcquire("user-2"))
	assert.True(t, prl.TryAcquire("user-1"))
	assert.True(t, prl.TryAcquire("user-2"))

	assert.False(t, prl.TryAcquire("user-1"))
	assert.False(t, prl.TryAcquire("user-2"))
	assert.Len(t, prl.GetStats(), 2)
}

func TestPooledRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prl := NewPooledRateLimiter(10, 2, time.Minute)
	prl.now = func() time.Time { return now }

	prl.TryAcquire("old")
	now = now.Add(50 * time.Second)
	prl.TryAcquire("fresh")
	now = now.Add(20 * time.Second)

	assert.Equal(t, 1, prl.Sweep())
	assert.Equal(t, 1, prl.Len())
	_, ok := prl.GetStats()["fresh"]
	assert.True(t, ok)
}
