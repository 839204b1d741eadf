// Package ratelimit throttles outbound calls to the QuickBooks API.
//
// The bucket is shared by every tenant in the process because Intuit enforces
// the quota per application credential, not per company. State lives in memory
// only and resets on restart.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// QuickBooks allows 500 requests per minute per app.
const (
	DefaultCapacity        = 500
	DefaultRefillPerSecond = 500.0 / 60.0
)

// ErrCostExceedsCapacity is returned when a single call asks for more tokens
// than the bucket can ever hold. This is a caller bug, the request could never
// be satisfied by waiting.
var ErrCostExceedsCapacity = errors.New("ratelimit: cost exceeds bucket capacity")

// Clock abstracts time so tests can run the bucket deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limiter is a token bucket refilled continuously at a fixed rate.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
	refill   float64
	clock    Clock
	onWait   func(time.Duration)
}

type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithWaitObserver registers a callback invoked with every non-zero wait.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *Limiter) { l.onWait = fn }
}

// New builds a full bucket holding capacity tokens.
func New(capacity int, refillPerSecond float64, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillPerSecond <= 0 {
		refillPerSecond = DefaultRefillPerSecond
	}
	l := &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		capacity: capacity,
		refill:   refillPerSecond,
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewDefault returns a limiter sized for the QuickBooks production quota.
func NewDefault(opts ...Option) *Limiter {
	return New(DefaultCapacity, DefaultRefillPerSecond, opts...)
}

// Acquire blocks until cost tokens are available and deducts them. Refill is
// computed lazily from elapsed time on each call. The wait is exactly the
// deficit divided by the refill rate.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	if cost > l.capacity {
		return fmt.Errorf("%w: cost %d, capacity %d", ErrCostExceedsCapacity, cost, l.capacity)
	}

	now := l.clock.Now()
	r := l.bucket.ReserveN(now, cost)
	if !r.OK() {
		return fmt.Errorf("%w: cost %d, capacity %d", ErrCostExceedsCapacity, cost, l.capacity)
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if l.onWait != nil {
		l.onWait(delay)
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		// Hand the reserved tokens back so other callers are not penalised.
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// Capacity reports the bucket size.
func (l *Limiter) Capacity() int { return l.capacity }

// RefillRate reports tokens added per second.
func (l *Limiter) RefillRate() float64 { return l.refill }

// Available reports the tokens currently in the bucket, possibly fractional.
func (l *Limiter) Available() float64 {
	return l.bucket.TokensAt(l.clock.Now())
}
