// Package ratelimit enforces the per-endpoint token-bucket defense of
// design §5 ("rate limiter (4.x) applies to public endpoints, default 5
// req/s steady, burst 10") using golang.org/x/time/rate.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/a2afabric/core/internal/errs"
)

// Limiter keeps one independent token bucket per key. The caller chooses
// the key; the per-endpoint defense uses the endpoint name.
type Limiter struct {
	mu      sync.Mutex
	steady  rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// New constructs a Limiter allowing steadyPerSecond sustained requests with
// bursts up to burst.
func New(steadyPerSecond float64, burst int) *Limiter {
	if steadyPerSecond <= 0 {
		steadyPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Limiter{
		steady:  rate.Limit(steadyPerSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.steady, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow reports whether a request identified by key (the endpoint name for
// the per-endpoint defense) may proceed right now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).Allow()
}

// Check is Allow but returns the typed RateLimited error on rejection, for
// callers that want to propagate it directly.
func (l *Limiter) Check(key string) error {
	if !l.Allow(key) {
		return errs.New(errs.RateLimited, "rate limit exceeded for %s", key)
	}
	return nil
}

// Reset discards the bucket for key, e.g. when a peer is deregistered.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Count returns the number of distinct keys currently tracked.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
