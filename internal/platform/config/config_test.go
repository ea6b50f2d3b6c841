package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TOKEN_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("REPORT_PERIODS", " 2026-h1, ,2026-h2")

	cfg := Load()
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.StoreDriver)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("expected 30m token ttl, got %v", cfg.TokenTTL)
	}
	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected fallback rate limit, got %d", cfg.RateLimitPerMinute)
	}
	if len(cfg.ReportPeriods) != 2 || cfg.ReportPeriods[1] != "2026-h2" {
		t.Fatalf("unexpected report periods: %v", cfg.ReportPeriods)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:        StoreDriverPostgres,
		DatabaseURL:        "postgres://localhost/perf",
		JWTSecret:          "secret",
		MaxBodyBytes:       4096,
		RateLimitPerMinute: 10,
		TokenTTL:           time.Hour,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	cases := map[string]func(c *Config){
		"missing database url":  func(c *Config) { c.DatabaseURL = "" },
		"unknown driver":        func(c *Config) { c.StoreDriver = "sqlite" },
		"missing secret":        func(c *Config) { c.JWTSecret = " " },
		"short prod secret":     func(c *Config) { c.Environment = "production" },
		"memory in production":  func(c *Config) { c.StoreDriver = StoreDriverMemory; c.Environment = "production" },
		"tiny body limit":       func(c *Config) { c.MaxBodyBytes = 10 },
		"report without period": func(c *Config) { c.ReportInterval = time.Hour },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
