package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickbooks_sync_operations_total",
			Help: "Sync attempts by entity, action and outcome",
		},
		[]string{"entity_type", "action", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quickbooks_sync_duration_seconds",
			Help:    "Duration of a single entity sync in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickbooks_rate_limit_waits_total",
			Help: "Number of API calls that had to wait for the token bucket",
		},
	)

	RateLimitWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quickbooks_rate_limit_wait_seconds_total",
			Help: "Cumulative time spent waiting for the token bucket",
		},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickbooks_token_refreshes_total",
			Help: "Access token refresh attempts by outcome",
		},
		[]string{"status"},
	)

	ConnectionsDisabled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quickbooks_connections_disabled_total",
			Help: "Connections soft-disabled, by reason",
		},
		[]string{"reason"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quickbooks_circuit_breaker_state",
			Help: "API circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

// RecordSync counts one sync attempt.
func RecordSync(entityType, action, status string, elapsed time.Duration) {
	SyncOperations.WithLabelValues(entityType, action, status).Inc()
	SyncDuration.WithLabelValues(entityType).Observe(elapsed.Seconds())
}

// RecordRateLimitWait is the limiter's wait observer.
func RecordRateLimitWait(d time.Duration) {
	RateLimitWaits.Inc()
	RateLimitWaitSeconds.Add(d.Seconds())
}

func RecordTokenRefresh(ok bool) {
	if ok {
		TokenRefreshes.WithLabelValues("success").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("error").Inc()
}

func RecordConnectionDisabled(reason string) {
	ConnectionsDisabled.WithLabelValues(reason).Inc()
}

// RecordBreakerState maps gobreaker state names onto the gauge.
func RecordBreakerState(_, to string) {
	switch to {
	case "closed":
		BreakerState.Set(0)
	case "half-open":
		BreakerState.Set(1)
	case "open":
		BreakerState.Set(2)
	}
}
