package providers

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at a fixed number of requests per
// second. The bucket holds at most one second's worth of tokens.
type RateLimiter struct {
	mu sync.Mutex

	rps        float64
	capacity   float64
	tokens     float64
	lastUpdate time.Time
	blockedTil time.Time

	totalConsumed int64
	totalWaited   time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	TokensAvailable   int           `json:"tokens_available"`
	TotalConsumed     int64         `json:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited"`
	BlockedUntil      time.Time     `json:"blocked_until,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second.
// Non-positive values default to 5.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 5
	}
	capacity := math.Max(1, math.Ceil(rps))
	return &RateLimiter{
		rps:        rps,
		capacity:   capacity,
		tokens:     capacity,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		r.refill(now)

		var wait time.Duration
		switch {
		case now.Before(r.blockedTil):
			wait = r.blockedTil.Sub(now)
		case r.tokens >= 1:
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		default:
			wait = time.Duration((1 - r.tokens) / r.rps * float64(time.Second))
		}
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)
	if now.Before(r.blockedTil) || r.tokens < 1 {
		return false
	}
	r.tokens--
	r.totalConsumed++
	return true
}

// Record429 drains the bucket and holds new requests for retryAfter.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens = 0
	if retryAfter > 0 {
		r.blockedTil = time.Now().Add(retryAfter)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill(time.Now())
	return RateLimiterStatus{
		RequestsPerSecond: r.rps,
		TokensAvailable:   int(r.tokens),
		TotalConsumed:     r.totalConsumed,
		TotalWaited:       r.totalWaited,
		BlockedUntil:      r.blockedTil,
	}
}

// refill must be called with the lock held.
func (r *RateLimiter) refill(now time.Time) {
	r.tokens = math.Min(r.capacity, r.tokens+now.Sub(r.lastUpdate).Seconds()*r.rps)
	r.lastUpdate = now
}
