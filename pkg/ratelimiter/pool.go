package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type pooledEntry struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// PooledRateLimiter keeps one bucket per key, e.g. per user.
// Buckets idle for longer than the idle window are dropped by Sweep.
type PooledRateLimiter struct {
	limiters map[string]*pooledEntry
	mutex    sync.Mutex
	rps      int
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func NewPooledRateLimiter(rps, burst int, idle time.Duration) *PooledRateLimiter {
	return &PooledRateLimiter{
		limiters: make(map[string]*pooledEntry),
		rps:      rps,
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

func (p *PooledRateLimiter) Wait(ctx context.Context, key string) error {
	return p.getLimiter(key).Wait(ctx)
}

func (p *PooledRateLimiter) TryAcquire(key string) bool {
	return p.getLimiter(key).TryAcquire()
}

func (p *PooledRateLimiter) getLimiter(key string) *RateLimiter {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	e, ok := p.limiters[key]
	if !ok {
		e = &pooledEntry{limiter: NewRateLimiterFromRPS(p.rps, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = p.now()
	return e.limiter
}

// Sweep drops idle buckets and returns how many were removed.
func (p *PooledRateLimiter) Sweep() int {
	if p.idle <= 0 {
		return 0
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := p.now().Add(-p.idle)
	removed := 0
	for key, e := range p.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(p.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (p *PooledRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

func (p *PooledRateLimiter) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.limiters)
}

// GetStats returns bucket statistics per key.
func (p *PooledRateLimiter) GetStats() map[string]map[string]any {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats := make(map[string]map[string]any, len(p.limiters))
	for key, e := range p.limiters {
		available, capacity, interval := e.limiter.GetStats()
		stats[key] = map[string]any{
			"available_tokens": available,
			"capacity":         capacity,
			"rate_ms":          interval.Milliseconds(),
		}
	}
	return stats
}
