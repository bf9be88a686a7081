package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over golang.org/x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int
	rps     int
}

// NewRateLimiter creates a limiter that refills one token every interval.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	rps := 1
	if interval > 0 {
		rps = int(time.Second / interval)
	}
	return NewRateLimiterFromRPS(rps, burst)
}

// NewRateLimiterFromRPS creates a limiter directly from requests per second.
// A burst below one is raised to the rate.
func NewRateLimiterFromRPS(rps int, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		burst:   burst,
		rps:     rps,
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// TryAcquire takes a token without blocking.
func (rl *RateLimiter) TryAcquire() bool {
	return rl.limiter.Allow()
}

// GetStats returns an estimate of the bucket state.
func (rl *RateLimiter) GetStats() (available, capacity int, interval time.Duration) {
	available = int(rl.limiter.Tokens())
	if available < 0 {
		available = 0
	}
	return available, rl.burst, time.Second / time.Duration(rl.rps)
}
