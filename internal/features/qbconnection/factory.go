package qbconnection

import (
	"net/http"
	"time"

	"roof-crm/internal/config"
	"roof-crm/internal/metrics"
	"roof-crm/pkg/qbclient"
	"roof-crm/pkg/ratelimit"
	"roof-crm/pkg/retry"

	"go.uber.org/zap"
)

// NewRateLimiter is the process wide bucket for the QuickBooks API quota.
func NewRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(
		cfg.QuickBooks.RateLimitCapacity,
		cfg.QuickBooks.RateLimitRefill,
		ratelimit.WithWaitObserver(metrics.RecordRateLimitWait),
	)
}

func NewBreaker(logger *zap.Logger) *qbclient.Breaker {
	return qbclient.NewBreaker(logger, metrics.RecordBreakerState)
}

// ClientFactory builds authenticated API clients that share one limiter,
// one breaker and one HTTP transport.
type ClientFactory struct {
	BaseURL      string
	MinorVersion string
	Limiter      qbclient.Limiter
	Breaker      *qbclient.Breaker
	Retry        retry.Options
	HTTP         *http.Client
	Logger       *zap.Logger
}

func NewClientFactory(cfg *config.Config, limiter *ratelimit.Limiter, breaker *qbclient.Breaker, logger *zap.Logger) *ClientFactory {
	baseURL := qbclient.SandboxBaseURL
	if cfg.QuickBooks.IsProduction() {
		baseURL = qbclient.ProductionBaseURL
	}
	return &ClientFactory{
		BaseURL:      baseURL,
		MinorVersion: cfg.QuickBooks.MinorVersion,
		Limiter:      limiter,
		Breaker:      breaker,
		Retry: retry.Options{
			MaxRetries:   cfg.QuickBooks.RetryMax,
			InitialDelay: cfg.QuickBooks.RetryInitialDelay,
			MaxDelay:     cfg.QuickBooks.RetryMaxDelay,
			Logger:       logger,
		},
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Logger: logger,
	}
}

func (f *ClientFactory) New(accessToken, realmID string) *qbclient.Client {
	opts := []qbclient.Option{
		qbclient.WithBaseURL(f.BaseURL),
		qbclient.WithRetry(f.Retry),
	}
	if f.MinorVersion != "" {
		opts = append(opts, qbclient.WithMinorVersion(f.MinorVersion))
	}
	if f.HTTP != nil {
		opts = append(opts, qbclient.WithHTTPClient(f.HTTP))
	}
	if f.Limiter != nil {
		opts = append(opts, qbclient.WithLimiter(f.Limiter))
	}
	if f.Breaker != nil {
		opts = append(opts, qbclient.WithBreaker(f.Breaker))
	}
	if f.Logger != nil {
		opts = append(opts, qbclient.WithLogger(f.Logger.With(zap.String("realm_id", realmID))))
	}
	return qbclient.New(accessToken, realmID, opts...)
}
