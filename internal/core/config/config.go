package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Ingestion   IngestionConfig   `koanf:"ingestion"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Redis       RedisConfig       `koanf:"redis"`
	Analytics   AnalyticsConfig   `koanf:"analytics"`
	Rejections  RejectionsConfig  `koanf:"rejections"`
	Delivery    DeliveryConfig    `koanf:"delivery"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type SecurityConfig struct {
	// MasterSecret is the root of the per-project secret derivation. It has
	// no default: the service refuses to start without one.
	MasterSecret string `koanf:"master_secret"`

	ReplayWindowMs int `koanf:"replay_window_ms"`
}

func (c SecurityConfig) ReplayWindow() time.Duration {
	return time.Duration(c.ReplayWindowMs) * time.Millisecond
}

type RateLimitConfig struct {
	RequestsPerMinute int64 `koanf:"requests_per_minute"`
}

type IngestionConfig struct {
	MaxBodySizeMB    int `koanf:"max_body_size_mb"`
	MaxBatchSize     int `koanf:"max_batch_size"`
	MaxEventAgeDays  int `koanf:"max_event_age_days"`
	StoreTimeoutSecs int `koanf:"store_timeout_secs"`

	EventDedupeTTLMins int `koanf:"event_dedupe_ttl_mins"`
	OrderDedupeTTLMins int `koanf:"order_dedupe_ttl_mins"`
}

func (c IngestionConfig) MaxEventAge() time.Duration {
	return time.Duration(c.MaxEventAgeDays) * 24 * time.Hour
}

func (c IngestionConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSecs) * time.Second
}

func (c IngestionConfig) EventDedupeTTL() time.Duration {
	return time.Duration(c.EventDedupeTTLMins) * time.Minute
}

func (c IngestionConfig) OrderDedupeTTL() time.Duration {
	return time.Duration(c.OrderDedupeTTLMins) * time.Minute
}

type CredentialsConfig struct {
	AuthorityURL     string `koanf:"authority_url"`
	AuthorityTimeout string `koanf:"authority_timeout"`
	PositiveTTLSecs  int    `koanf:"positive_ttl_secs"`
	NegativeTTLSecs  int    `koanf:"negative_ttl_secs"`

	// DevFallback authenticates requests as a fixed test project when the
	// authority is unreachable. Development only.
	DevFallback bool `koanf:"dev_fallback"`
}

func (c CredentialsConfig) PositiveTTL() time.Duration {
	return time.Duration(c.PositiveTTLSecs) * time.Second
}

func (c CredentialsConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLSecs) * time.Second
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AnalyticsConfig struct {
	// Path is the DuckDB database file. ":memory:" is accepted for local runs.
	Path string `koanf:"path"`
}

type RejectionsConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type DeliveryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	Stream         string `koanf:"stream"`
	Subject        string `koanf:"subject"`
	DupeWindowMins int    `koanf:"dupe_window_mins"`
}

func (c DeliveryConfig) DupeWindow() time.Duration {
	return time.Duration(c.DupeWindowMins) * time.Minute
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Security.MasterSecret) == "" {
		return fmt.Errorf("security.master_secret is required")
	}
	if c.Security.ReplayWindowMs <= 0 {
		return fmt.Errorf("security.replay_window_ms must be > 0")
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be > 0")
	}

	if c.Ingestion.MaxBodySizeMB <= 0 {
		return fmt.Errorf("ingestion.max_body_size_mb must be > 0")
	}
	if c.Ingestion.MaxBatchSize <= 0 {
		return fmt.Errorf("ingestion.max_batch_size must be > 0")
	}
	if c.Ingestion.MaxEventAgeDays <= 0 {
		return fmt.Errorf("ingestion.max_event_age_days must be > 0")
	}
	if c.Ingestion.StoreTimeoutSecs <= 0 {
		return fmt.Errorf("ingestion.store_timeout_secs must be > 0")
	}
	if c.Ingestion.EventDedupeTTLMins <= 0 {
		return fmt.Errorf("ingestion.event_dedupe_ttl_mins must be > 0")
	}
	if c.Ingestion.OrderDedupeTTLMins <= 0 {
		return fmt.Errorf("ingestion.order_dedupe_ttl_mins must be > 0")
	}

	if strings.TrimSpace(c.Credentials.AuthorityURL) == "" && !c.Credentials.DevFallback {
		return fmt.Errorf("credentials.authority_url is required unless credentials.dev_fallback is enabled")
	}
	if _, err := time.ParseDuration(c.Credentials.AuthorityTimeout); err != nil {
		return fmt.Errorf("invalid credentials.authority_timeout %q: %w", c.Credentials.AuthorityTimeout, err)
	}
	if c.Credentials.PositiveTTLSecs <= 0 {
		return fmt.Errorf("credentials.positive_ttl_secs must be > 0")
	}
	if c.Credentials.NegativeTTLSecs <= 0 {
		return fmt.Errorf("credentials.negative_ttl_secs must be > 0")
	}

	if strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if strings.TrimSpace(c.Analytics.Path) == "" {
		return fmt.Errorf("analytics.path is required")
	}

	if strings.TrimSpace(c.Rejections.DSN) == "" {
		return fmt.Errorf("rejections.dsn is required")
	}
	if c.Rejections.MaxOpenConns <= 0 {
		return fmt.Errorf("rejections.max_open_conns must be > 0")
	}
	if c.Rejections.MaxIdleConns <= 0 {
		return fmt.Errorf("rejections.max_idle_conns must be > 0")
	}

	if c.Delivery.Enabled {
		if strings.TrimSpace(c.Delivery.URL) == "" {
			return fmt.Errorf("delivery.url is required when delivery.enabled")
		}
		if strings.TrimSpace(c.Delivery.Stream) == "" {
			return fmt.Errorf("delivery.stream is required when delivery.enabled")
		}
		if strings.TrimSpace(c.Delivery.Subject) == "" {
			return fmt.Errorf("delivery.subject is required when delivery.enabled")
		}
		if c.Delivery.DupeWindowMins <= 0 {
			return fmt.Errorf("delivery.dupe_window_mins must be > 0")
		}
	}

	return nil
}

// Load parses config from defaults, an optional YAML file and PULSE_*
// environment variables (double underscore maps to a dot), then validates.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port": 8080,
		"server.host": "0.0.0.0",
		"server.mode": "release",

		"security.master_secret":    "",
		"security.replay_window_ms": 300000,

		"rate_limit.requests_per_minute": 600,

		"ingestion.max_body_size_mb":      1,
		"ingestion.max_batch_size":        100,
		"ingestion.max_event_age_days":    7,
		"ingestion.store_timeout_secs":    5,
		"ingestion.event_dedupe_ttl_mins": 60,
		"ingestion.order_dedupe_ttl_mins": 1440,

		"credentials.authority_url":     "",
		"credentials.authority_timeout": "3s",
		"credentials.positive_ttl_secs": 300,
		"credentials.negative_ttl_secs": 60,
		"credentials.dev_fallback":      false,

		"redis.addr":     "localhost:6379",
		"redis.password": "",
		"redis.db":       0,

		"analytics.path": "pulse.duckdb",

		"rejections.dsn":            "",
		"rejections.max_open_conns": 25,
		"rejections.max_idle_conns": 25,
		"rejections.auto_migrate":   true,

		"delivery.enabled":          true,
		"delivery.url":              "nats://localhost:4222",
		"delivery.stream":           "DELIVERY",
		"delivery.subject":          "delivery.conversions",
		"delivery.dupe_window_mins": 120,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("PULSE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "PULSE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
