package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Popularity.HistorySize != 25 || cfg.Popularity.KeepTop != 20000 || cfg.Popularity.CacheableTop != 10000 {
		t.Fatalf("unexpected popularity defaults: %+v", cfg.Popularity)
	}
	if cfg.PageCache.TTL != 300*time.Second {
		t.Fatalf("unexpected page ttl: %v", cfg.PageCache.TTL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ttl", func(c *Config) { c.PageCache.TTL = 0 }},
		{"negative limit", func(c *Config) { c.Sessions.Limit = -1 }},
		{"zero batch", func(c *Config) { c.Sessions.BatchSize = 0 }},
		{"zero decay interval", func(c *Config) { c.Popularity.DecayInterval = 0 }},
		{"cacheable above keep", func(c *Config) { c.Popularity.CacheableTop = c.Popularity.KeepTop + 1 }},
		{"zero poll", func(c *Config) { c.Rows.PollInterval = 0 }},
		{"bad log format", func(c *Config) { c.Observability.Logging.Format = "xml" }},
		{"no redis", func(c *Config) { c.Redis.Addr = "" }},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tt.name, err)
		}
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	data := []byte(`
redis:
  addr: redis:6379
  key_prefix: "shop:"
sessions:
  limit: 500
page_cache:
  ttl: 2m
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.KeyPrefix != "shop:" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Sessions.Limit != 500 {
		t.Fatalf("expected limit 500, got %d", cfg.Sessions.Limit)
	}
	if cfg.PageCache.TTL != 2*time.Minute {
		t.Fatalf("expected ttl 2m, got %v", cfg.PageCache.TTL)
	}
	// Unset sections keep defaults.
	if cfg.Popularity.KeepTop != 20000 {
		t.Fatalf("expected default keep_top, got %d", cfg.Popularity.KeepTop)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.json")
	if err := os.WriteFile(path, []byte(`{"daemon":{"http_addr":":9999"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Daemon.HTTPAddr != ":9999" {
		t.Fatalf("expected :9999, got %q", cfg.Daemon.HTTPAddr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_REDIS_ADDR", "cache:6380")
	t.Setenv("STOREFRONT_SESSION_LIMIT", "42")
	t.Setenv("STOREFRONT_PAGE_TTL", "90s")
	t.Setenv("STOREFRONT_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("unexpected addr %q", cfg.Redis.Addr)
	}
	if cfg.Sessions.Limit != 42 {
		t.Fatalf("unexpected limit %d", cfg.Sessions.Limit)
	}
	if cfg.PageCache.TTL != 90*time.Second {
		t.Fatalf("unexpected ttl %v", cfg.PageCache.TTL)
	}
	if cfg.Observability.Logging.Format != "json" {
		t.Fatalf("unexpected format %q", cfg.Observability.Logging.Format)
	}
}
