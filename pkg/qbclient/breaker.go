package qbclient

import (
	"errors"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"roof-crm/pkg/retry"
)

// Response is the raw reply passed through the circuit breaker.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Breaker guards the QuickBooks API process wide.
type Breaker = gobreaker.CircuitBreaker[*Response]

// NewBreaker opens after five consecutive transient failures (5xx or
// network) and tries again after a minute. Validation errors and 429s do not
// count; the limiter and Retry-After handle throttling.
func NewBreaker(logger *zap.Logger, onStateChange func(from, to string)) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "quickbooks-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var re *retry.Error
			if errors.As(err, &re) && re.Status == http.StatusTooManyRequests {
				return true
			}
			retryable, _ := retry.Classify(err)
			return !retryable
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if onStateChange != nil {
				onStateChange(from.String(), to.String())
			}
		},
	})
}
