package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "trade-alert/internal/errors"
)

func TestLoadWritesTemplateAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("expected template config.toml to be created: %v", err)
	}

	pf := cfg.PriceFetcher
	if pf.UpdateInterval() != time.Minute {
		t.Errorf("UpdateInterval = %v, want 1m", pf.UpdateInterval())
	}
	if pf.CacheTTL() != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", pf.CacheTTL())
	}
	if pf.MaxRetries != 3 || pf.MaxConcurrentRequests != 5 || pf.MaxRequestsPerHour != 1000 {
		t.Errorf("unexpected fetcher defaults: %+v", pf)
	}
	if pf.RateLimitBackoff() != time.Minute {
		t.Errorf("RateLimitBackoff = %v, want 1m", pf.RateLimitBackoff())
	}
	if cfg.Database.Path != filepath.Join(dir, "trade_alert.db") {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Sources.YahooURL == "" || cfg.Sources.SinaURL == "" || cfg.Sources.TencentURL == "" {
		t.Errorf("source URLs should default: %+v", cfg.Sources)
	}

	// Second load reads the template back and yields the same values.
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if again.PriceFetcher != cfg.PriceFetcher {
		t.Errorf("template round trip changed fetcher config: %+v vs %+v", again.PriceFetcher, cfg.PriceFetcher)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
[price_fetcher]
max_retries = 7
cache_ttl_secs = 5

[alerts]
max_per_user = 10
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRADE_ALERT_PRICE_FETCHER__MAX_CONCURRENT_REQUESTS", "2")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PriceFetcher.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", cfg.PriceFetcher.MaxRetries)
	}
	if cfg.PriceFetcher.CacheTTLSecs != 5 {
		t.Errorf("CacheTTLSecs = %d, want 5", cfg.PriceFetcher.CacheTTLSecs)
	}
	if cfg.PriceFetcher.MaxConcurrentRequests != 2 {
		t.Errorf("MaxConcurrentRequests = %d, want 2 from env", cfg.PriceFetcher.MaxConcurrentRequests)
	}
	if cfg.Alerts.MaxPerUser != 10 {
		t.Errorf("MaxPerUser = %d, want 10", cfg.Alerts.MaxPerUser)
	}
	// Untouched keys keep defaults.
	if cfg.PriceFetcher.MaxRequestsPerHour != 1000 {
		t.Errorf("MaxRequestsPerHour = %d, want default 1000", cfg.PriceFetcher.MaxRequestsPerHour)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.PriceFetcher.UpdateIntervalSecs = 0 }},
		{"zero retries", func(c *Config) { c.PriceFetcher.MaxRetries = 0 }},
		{"zero permits", func(c *Config) { c.PriceFetcher.MaxConcurrentRequests = 0 }},
		{"zero hourly budget", func(c *Config) { c.PriceFetcher.MaxRequestsPerHour = 0 }},
		{"negative cache ttl", func(c *Config) { c.PriceFetcher.CacheTTLSecs = -1 }},
		{"zero upstream rate", func(c *Config) { c.PriceFetcher.UpstreamRequestsPerSecond = 0 }},
		{"kafka without topic", func(c *Config) {
			c.Notifications.Kafka.Enabled = true
			c.Notifications.Kafka.Topic = ""
		}},
		{"metrics without addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
			}
		})
	}
}
