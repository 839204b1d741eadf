// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
)

// Options tunes the backoff. Zero values fall back to the defaults above,
// so MaxRetries 0 means "use the default"; set NoRetry to disable retries.
type Options struct {
	MaxRetries   int
	NoRetry      bool
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Logger       *zap.Logger
	// Sleep waits between attempts. Defaults to a context aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.NoRetry {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Multiplier < 1 {
		o.Multiplier = DefaultMultiplier
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes op, retrying retryable failures. After the last attempt the
// final error is returned as is.
func Do(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	_, err := DoValue(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}

// DoValue is Do for operations producing a value.
func DoValue[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()
	delay := opts.InitialDelay

	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		retryable, hint := Classify(err)
		if !retryable || attempt >= opts.MaxRetries {
			return v, err
		}

		wait := delay
		if hint > 0 {
			wait = hint
		}
		if wait > opts.MaxDelay && hint == 0 {
			wait = opts.MaxDelay
		}

		opts.Logger.Warn("Retrying operation",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", opts.MaxRetries),
			zap.Duration("delay", wait),
			zap.Error(err),
		)

		if serr := opts.Sleep(ctx, wait); serr != nil {
			return v, err
		}

		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
}

// Classify reports whether err should be retried and the server supplied
// wait, if any.
func Classify(err error) (retryable bool, retryAfter time.Duration) {
	var re *Error
	if errors.As(err, &re) {
		if re.Kind != KindRetryable {
			return false, 0
		}
		if re.Status == http.StatusTooManyRequests {
			return true, re.RetryAfter
		}
		return true, 0
	}

	if errors.Is(err, context.Canceled) {
		return false, 0
	}
	return isNetworkError(err), 0
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
