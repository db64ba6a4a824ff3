package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration value rejected before any store access.
var ErrInvalid = errors.New("invalid configuration")

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// PostgresConfig points at the inventory database used to materialize
// scheduled rows. An empty DSN selects the built-in static source.
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// SessionsConfig bounds the active session population.
type SessionsConfig struct {
	Limit     int64         `json:"limit" yaml:"limit"`
	BatchSize int64         `json:"batch_size" yaml:"batch_size"`
	IdlePoll  time.Duration `json:"idle_poll" yaml:"idle_poll"`
	// Carts makes eviction also delete the session's cart.
	Carts bool `json:"carts" yaml:"carts"`
}

// PopularityConfig controls view history and the decaying item ranking.
type PopularityConfig struct {
	HistorySize   int64         `json:"history_size" yaml:"history_size"`
	DecayInterval time.Duration `json:"decay_interval" yaml:"decay_interval"`
	KeepTop       int64         `json:"keep_top" yaml:"keep_top"`
	CacheableTop  int64         `json:"cacheable_top" yaml:"cacheable_top"`
}

// PageCacheConfig controls rendered-page caching.
type PageCacheConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// RowsConfig controls the scheduled row refresher.
type RowsConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// LoggingConfig selects the operational log format.
type LoggingConfig struct {
	Format string `json:"format" yaml:"format"` // text, json
	Level  string `json:"level" yaml:"level"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// ObservabilityConfig groups logging, tracing and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Postgres      PostgresConfig      `json:"postgres" yaml:"postgres"`
	Sessions      SessionsConfig      `json:"sessions" yaml:"sessions"`
	Popularity    PopularityConfig    `json:"popularity" yaml:"popularity"`
	PageCache     PageCacheConfig     `json:"page_cache" yaml:"page_cache"`
	Rows          RowsConfig          `json:"rows" yaml:"rows"`
	Daemon        DaemonConfig        `json:"daemon" yaml:"daemon"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Sessions: SessionsConfig{
			Limit:     10_000_000,
			BatchSize: 100,
			IdlePoll:  time.Second,
			Carts:     true,
		},
		Popularity: PopularityConfig{
			HistorySize:   25,
			DecayInterval: 300 * time.Second,
			KeepTop:       20_000,
			CacheableTop:  10_000,
		},
		PageCache: PageCacheConfig{
			TTL: 300 * time.Second,
		},
		Rows: RowsConfig{
			PollInterval: 50 * time.Millisecond,
		},
		Daemon: DaemonConfig{
			HTTPAddr: ":8080",
			LogLevel: "info",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Format: "text", Level: "info"},
			Tracing: TracingConfig{
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "storefront",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{Enabled: true, Namespace: "storefront"},
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file. The format is
// chosen by extension; durations in YAML may be written as "5m".
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STOREFRONT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("STOREFRONT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STOREFRONT_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("STOREFRONT_KEY_PREFIX"); v != "" {
		cfg.Redis.KeyPrefix = v
	}
	if v := os.Getenv("STOREFRONT_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("STOREFRONT_SESSION_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Sessions.Limit = n
		}
	}
	if v := os.Getenv("STOREFRONT_PAGE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PageCache.TTL = d
		}
	}
	if v := os.Getenv("STOREFRONT_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("STOREFRONT_GRPC_ADDR"); v != "" {
		cfg.Daemon.GRPCAddr = v
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("STOREFRONT_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("STOREFRONT_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.Endpoint = v
	}
}

// Validate rejects values the maintenance loops and caches cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Redis.Addr == "":
		return fmt.Errorf("%w: redis.addr is required", ErrInvalid)
	case c.Sessions.Limit < 0:
		return fmt.Errorf("%w: sessions.limit must not be negative", ErrInvalid)
	case c.Sessions.BatchSize <= 0:
		return fmt.Errorf("%w: sessions.batch_size must be positive", ErrInvalid)
	case c.Sessions.IdlePoll <= 0:
		return fmt.Errorf("%w: sessions.idle_poll must be positive", ErrInvalid)
	case c.Popularity.HistorySize <= 0:
		return fmt.Errorf("%w: popularity.history_size must be positive", ErrInvalid)
	case c.Popularity.DecayInterval <= 0:
		return fmt.Errorf("%w: popularity.decay_interval must be positive", ErrInvalid)
	case c.Popularity.KeepTop <= 0:
		return fmt.Errorf("%w: popularity.keep_top must be positive", ErrInvalid)
	case c.Popularity.CacheableTop <= 0 || c.Popularity.CacheableTop > c.Popularity.KeepTop:
		return fmt.Errorf("%w: popularity.cacheable_top must be in (0, keep_top]", ErrInvalid)
	case c.PageCache.TTL <= 0:
		return fmt.Errorf("%w: page_cache.ttl must be positive", ErrInvalid)
	case c.Rows.PollInterval <= 0:
		return fmt.Errorf("%w: rows.poll_interval must be positive", ErrInvalid)
	}
	switch c.Observability.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Observability.Logging.Format)
	}
	return nil
}
