// Package ratelimit implements the request-admission token bucket the
// executor consults before every request attempt. It is a thin, spec-shaped
// wrapper over golang.org/x/time/rate: rate<=0 means unlimited and
// side-effect-free, burst defaults to rate, and SetRate atomically
// reconfigures both.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Bucket admits requests at a configurable rate with a bounded burst.
type Bucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	rate    float64 // req/sec, 0 = unlimited
	burst   int
}

// New creates a Bucket. burst <= 0 defaults to r truncated to an integer
// (at least 1), and r <= 0
// means unlimited: Acquire and TryAcquire never block or fail.
func New(r float64, burst int) *Bucket {
	b := &Bucket{}
	b.SetRate(r, burst)
	return b
}

// SetRate atomically reconfigures the bucket by replacing its limiter:
// the new bucket starts full at the new burst, and no state from the
// old rate carries over.
func (b *Bucket) SetRate(r float64, burst int) {
	if burst <= 0 {
		burst = int(r)
		if burst <= 0 {
			burst = 1
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate, b.burst = r, burst
	if r <= 0 {
		b.limiter = nil
		return
	}
	b.limiter = rate.NewLimiter(rate.Limit(r), burst)
}

// Acquire blocks until a token is available, or returns immediately if
// the bucket is unlimited.
func (b *Bucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	l := b.limiter
	b.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// TryAcquire is the non-blocking variant: it pops a token if one is
// immediately available, or reports false.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	l := b.limiter
	b.mu.Unlock()
	if l == nil {
		return true
	}
	return l.Allow()
}
