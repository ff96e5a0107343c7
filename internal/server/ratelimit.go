package server

import (
	"context"
	"sync"
	"time"
)

// Limiter provides a leaky bucket rate limiter (constant drain rate).
type Limiter struct {
	rate float64
	next time.Time
	mu   sync.Mutex
}

// NewLimiter creates a limiter with a given rate (bytes/sec). A non-positive
// rate returns nil, which never waits.
func NewLimiter(rate float64) *Limiter {
	if rate <= 0 {
		return nil
	}
	return &Limiter{rate: rate}
}

// Wait blocks until n bytes may be sent at the configured rate or ctx ends.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	wait := l.next.Sub(now)
	l.next = l.next.Add(time.Duration(float64(n) / l.rate * float64(time.Second)))
	l.mu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
