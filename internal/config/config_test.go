package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("QB_ENVIRONMENT", "sandbox")
	t.Setenv("QB_RETRY_MAX_DELAY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.QuickBooks.RateLimitCapacity != 500 {
		t.Errorf("capacity = %d", cfg.QuickBooks.RateLimitCapacity)
	}
	if cfg.QuickBooks.RetryMaxDelay != 30*time.Second {
		t.Errorf("max delay = %v", cfg.QuickBooks.RetryMaxDelay)
	}
	if cfg.QuickBooks.IsProduction() {
		t.Error("sandbox should not be production")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("QB_ENVIRONMENT", "production")
	t.Setenv("QB_RATE_LIMIT_CAPACITY", "100")
	t.Setenv("QB_RETRY_INITIAL_DELAY", "250ms")
	t.Setenv("REDIS_DB", "2")

	cfg, _ := LoadConfig()
	if !cfg.QuickBooks.IsProduction() {
		t.Error("expected production")
	}
	if cfg.QuickBooks.RateLimitCapacity != 100 {
		t.Errorf("capacity = %d", cfg.QuickBooks.RateLimitCapacity)
	}
	if cfg.QuickBooks.RetryInitialDelay != 250*time.Millisecond {
		t.Errorf("initial delay = %v", cfg.QuickBooks.RetryInitialDelay)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("redis db = %d", cfg.RedisDB)
	}
}
