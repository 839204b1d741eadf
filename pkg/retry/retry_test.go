package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestNonRetryableRunsOnce(t *testing.T) {
	rec := &recorder{}
	calls := 0
	want := Fatal(400, "validation failed", `{"Fault":{}}`)

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return want
	}, Options{Sleep: rec.sleep})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, want) {
		t.Errorf("expected the fatal error back, got %v", err)
	}
	if len(rec.waits) != 0 {
		t.Errorf("expected no waits, got %v", rec.waits)
	}
}

func TestPlainErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	}, Options{Sleep: (&recorder{}).sleep})

	if err == nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestRetryAfterHintOverridesBackoff(t *testing.T) {
	rec := &recorder{}
	calls := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Retryable(429, 5*time.Second, "rate limited")
		}
		return nil
	}, Options{Sleep: rec.sleep})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.waits) != 1 || rec.waits[0] < 5000*time.Millisecond {
		t.Errorf("expected a wait of at least 5s, got %v", rec.waits)
	}
}

func TestExponentialBackoffCappedAndExhausted(t *testing.T) {
	rec := &recorder{}
	calls := 0
	last := Retryable(503, 0, "unavailable")

	err := Do(context.Background(), func(ctx context.Context) error {
		calls++
		return last
	}, Options{
		MaxRetries:   4,
		InitialDelay: 10 * time.Second,
		MaxDelay:     30 * time.Second,
		Sleep:        rec.sleep,
	})

	if calls != 5 {
		t.Errorf("expected 5 attempts, got %d", calls)
	}
	if !errors.Is(err, last) {
		t.Errorf("expected last error, got %v", err)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	if fmt.Sprint(rec.waits) != fmt.Sprint(want) {
		t.Errorf("waits = %v, want %v", rec.waits, want)
	}
}

func TestDefaultsAllowThreeRetries(t *testing.T) {
	rec := &recorder{}
	calls := 0

	_ = Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(500, 0, "server error")
	}, Options{Sleep: rec.sleep})

	if calls != 4 {
		t.Errorf("expected 4 total attempts, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if fmt.Sprint(rec.waits) != fmt.Sprint(want) {
		t.Errorf("waits = %v, want %v", rec.waits, want)
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	calls := 0
	got, err := DoValue(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &net.OpError{Op: "dial", Err: errors.New("connection refused")}
		}
		return "ok", nil
	}, Options{Sleep: (&recorder{}).sleep})

	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		hint      time.Duration
	}{
		{"429 with hint", Retryable(429, 7*time.Second, "slow down"), true, 7 * time.Second},
		{"5xx", Retryable(502, 0, "bad gateway"), true, 0},
		{"hint ignored off 429", Retryable(503, 9*time.Second, "unavailable"), true, 0},
		{"fatal", Fatal(404, "missing", ""), false, 0},
		{"wrapped fatal", fmt.Errorf("ctx: %w", Fatal(401, "auth", "")), false, 0},
		{"deadline", context.DeadlineExceeded, true, 0},
		{"canceled", context.Canceled, false, 0},
		{"generic", errors.New("nope"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, hint := Classify(tt.err)
			if retryable != tt.retryable || hint != tt.hint {
				t.Errorf("Classify() = %v, %v; want %v, %v", retryable, hint, tt.retryable, tt.hint)
			}
		})
	}
}

func TestErrorMessageCarriesStatusAndBody(t *testing.T) {
	err := Fatal(400, "QuickBooks API error", "Duplicate Name Exists")
	want := "QuickBooks API error (status 400): Duplicate Name Exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if StatusOf(fmt.Errorf("wrap: %w", err)) != 400 {
		t.Errorf("StatusOf did not unwrap")
	}
}
