package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestAcquireWithinCapacityNeverBlocks(t *testing.T) {
	clock := newFakeClock()
	l := New(5, 1, WithClock(clock))

	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background(), 1); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	if len(clock.sleeps) != 0 {
		t.Errorf("expected no waits, got %v", clock.sleeps)
	}
}

func TestAcquireBeyondCapacityWaitsForRefill(t *testing.T) {
	tests := []struct {
		name   string
		refill float64
	}{
		{name: "one per second", refill: 1},
		{name: "quickbooks quota", refill: DefaultRefillPerSecond},
		{name: "fast refill", refill: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			l := New(3, tt.refill, WithClock(clock))

			for i := 0; i < 3; i++ {
				if err := l.Acquire(context.Background(), 1); err != nil {
					t.Fatalf("acquire %d: %v", i, err)
				}
			}
			if err := l.Acquire(context.Background(), 1); err != nil {
				t.Fatalf("acquire over capacity: %v", err)
			}

			if len(clock.sleeps) != 1 {
				t.Fatalf("expected exactly one wait, got %v", clock.sleeps)
			}
			min := time.Duration(float64(time.Second) / tt.refill)
			// rate computes durations in float seconds; allow a nanosecond of rounding.
			if clock.sleeps[0] < min-time.Nanosecond {
				t.Errorf("waited %v, want >= %v", clock.sleeps[0], min)
			}
		})
	}
}

func TestAcquireRefillsFromElapsedTime(t *testing.T) {
	clock := newFakeClock()
	l := New(2, 1, WithClock(clock))

	_ = l.Acquire(context.Background(), 2)
	clock.now = clock.now.Add(2 * time.Second)

	if err := l.Acquire(context.Background(), 2); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("bucket should have refilled, waited %v", clock.sleeps)
	}
}

func TestAcquireCostAboveCapacity(t *testing.T) {
	l := New(2, 1, WithClock(newFakeClock()))

	err := l.Acquire(context.Background(), 3)
	if !errors.Is(err, ErrCostExceedsCapacity) {
		t.Fatalf("expected ErrCostExceedsCapacity, got %v", err)
	}
}

func TestAcquireCancelledWhileWaiting(t *testing.T) {
	clock := newFakeClock()
	l := New(1, 1, WithClock(clock))
	_ = l.Acquire(context.Background(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitObserver(t *testing.T) {
	clock := newFakeClock()
	var observed []time.Duration
	l := New(1, 2, WithClock(clock), WithWaitObserver(func(d time.Duration) {
		observed = append(observed, d)
	}))

	_ = l.Acquire(context.Background(), 1)
	_ = l.Acquire(context.Background(), 1)

	if len(observed) != 1 {
		t.Fatalf("expected one observed wait, got %v", observed)
	}
}
