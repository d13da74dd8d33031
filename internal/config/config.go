// Package config provides configuration management for the price alert service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "trade-alert/internal/errors"
)

// EnvPrefix is the prefix for environment overrides. Sections are separated
// by a double underscore, e.g. TRADE_ALERT_PRICE_FETCHER__MAX_RETRIES=5.
const EnvPrefix = "TRADE_ALERT"

// Config holds all application configuration. It is loaded once at startup
// and passed by pointer to every component; nothing re-reads it afterwards.
type Config struct {
	Database      DatabaseConfig     `mapstructure:"database"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	PriceFetcher  PriceFetcherConfig `mapstructure:"price_fetcher"`
	Sources       SourcesConfig      `mapstructure:"sources"`
	Alerts        AlertsConfig       `mapstructure:"alerts"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

// DatabaseConfig holds storage configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// PriceFetcherConfig holds the poller tuning knobs.
type PriceFetcherConfig struct {
	UpdateIntervalSecs        int     `mapstructure:"update_interval_secs"`
	CacheTTLSecs              int     `mapstructure:"cache_ttl_secs"`
	MaxRetries                int     `mapstructure:"max_retries"`
	MaxConcurrentRequests     int     `mapstructure:"max_concurrent_requests"`
	MaxRequestsPerHour        int     `mapstructure:"max_requests_per_hour"`
	RequestTimeoutSecs        int     `mapstructure:"request_timeout_secs"`
	PoolIdleTimeoutSecs       int     `mapstructure:"pool_idle_timeout_secs"`
	RateLimitBackoffSecs      int     `mapstructure:"rate_limit_backoff_secs"`
	RetryBaseDelayMillis      int     `mapstructure:"retry_base_delay_ms"`
	UpstreamRequestsPerSecond float64 `mapstructure:"upstream_requests_per_second"`
}

// UpdateInterval returns the scheduler tick interval.
func (c PriceFetcherConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSecs) * time.Second
}

// CacheTTL returns the maximum age of a cached price.
func (c PriceFetcherConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c PriceFetcherConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// PoolIdleTimeout returns how long idle upstream connections are kept.
func (c PriceFetcherConfig) PoolIdleTimeout() time.Duration {
	return time.Duration(c.PoolIdleTimeoutSecs) * time.Second
}

// RateLimitBackoff returns the wait before re-checking an exhausted budget.
func (c PriceFetcherConfig) RateLimitBackoff() time.Duration {
	return time.Duration(c.RateLimitBackoffSecs) * time.Second
}

// RetryBaseDelay returns the unit of the exponential retry backoff.
func (c PriceFetcherConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// SourcesConfig holds upstream endpoint bases. Overridable for testing
// against local stubs.
type SourcesConfig struct {
	YahooURL   string `mapstructure:"yahoo_url"`
	SinaURL    string `mapstructure:"sina_url"`
	TencentURL string `mapstructure:"tencent_url"`
}

// AlertsConfig holds alert administration limits.
type AlertsConfig struct {
	MaxPerUser  int    `mapstructure:"max_per_user"` // 0 = unlimited
	DefaultUser string `mapstructure:"default_user"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	To       string `mapstructure:"to"`
}

// KafkaConfig holds the trigger-event publisher configuration.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-alert"
	}
	return filepath.Join(home, ".config", "trade-alert")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := newViper(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir, "config"); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(configDir, "trade_alert.db")
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "trade-alert.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration produced by an empty config file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func newViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("price_fetcher.update_interval_secs", 60)
	v.SetDefault("price_fetcher.cache_ttl_secs", 30)
	v.SetDefault("price_fetcher.max_retries", 3)
	v.SetDefault("price_fetcher.max_concurrent_requests", 5)
	v.SetDefault("price_fetcher.max_requests_per_hour", 1000)
	v.SetDefault("price_fetcher.request_timeout_secs", 10)
	v.SetDefault("price_fetcher.pool_idle_timeout_secs", 90)
	v.SetDefault("price_fetcher.rate_limit_backoff_secs", 60)
	v.SetDefault("price_fetcher.retry_base_delay_ms", 1000)
	v.SetDefault("price_fetcher.upstream_requests_per_second", 5.0)

	v.SetDefault("sources.yahoo_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("sources.sina_url", "https://hq.sinajs.cn/list=")
	v.SetDefault("sources.tencent_url", "https://qt.gtimg.cn/q=")

	v.SetDefault("alerts.max_per_user", 0)
	v.SetDefault("alerts.default_user", "local")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.url", "")
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.bot_token", "")
	v.SetDefault("notifications.telegram.chat_id", "")
	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.smtp_host", "smtp.gmail.com")
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.email.username", "")
	v.SetDefault("notifications.email.password", "")
	v.SetDefault("notifications.email.from", "")
	v.SetDefault("notifications.email.from_name", "TradeAlert")
	v.SetDefault("notifications.email.to", "")
	v.SetDefault("notifications.kafka.enabled", false)
	v.SetDefault("notifications.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notifications.kafka.topic", "trade_alert_triggers")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	pf := c.PriceFetcher
	checks := []struct {
		field string
		value int
		min   int
	}{
		{"price_fetcher.update_interval_secs", pf.UpdateIntervalSecs, 1},
		{"price_fetcher.cache_ttl_secs", pf.CacheTTLSecs, 0},
		{"price_fetcher.max_retries", pf.MaxRetries, 1},
		{"price_fetcher.max_concurrent_requests", pf.MaxConcurrentRequests, 1},
		{"price_fetcher.max_requests_per_hour", pf.MaxRequestsPerHour, 1},
		{"price_fetcher.request_timeout_secs", pf.RequestTimeoutSecs, 1},
		{"price_fetcher.pool_idle_timeout_secs", pf.PoolIdleTimeoutSecs, 0},
		{"price_fetcher.rate_limit_backoff_secs", pf.RateLimitBackoffSecs, 1},
		{"price_fetcher.retry_base_delay_ms", pf.RetryBaseDelayMillis, 0},
		{"alerts.max_per_user", c.Alerts.MaxPerUser, 0},
	}
	for _, chk := range checks {
		if chk.value < chk.min {
			return fmt.Errorf("%w: %s must be >= %d, got %d", apperrors.ErrConfigInvalid, chk.field, chk.min, chk.value)
		}
	}
	if pf.UpstreamRequestsPerSecond <= 0 {
		return fmt.Errorf("%w: price_fetcher.upstream_requests_per_second must be positive", apperrors.ErrConfigInvalid)
	}

	if c.Notifications.Kafka.Enabled && (len(c.Notifications.Kafka.Brokers) == 0 || c.Notifications.Kafka.Topic == "") {
		return fmt.Errorf("%w: notifications.kafka requires brokers and topic", apperrors.ErrConfigInvalid)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr is required when metrics are enabled", apperrors.ErrConfigInvalid)
	}

	return nil
}
