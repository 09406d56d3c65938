// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MaxTopLimit caps GET /leaderboard/top?limit.
	MaxTopLimit int `koanf:"max_top_limit"`

	// DefaultTopLimit is used when limit is missing or not a number.
	DefaultTopLimit int `koanf:"default_top_limit"`

	// TableShards sets the number of player table shards.
	TableShards int `koanf:"table_shards"`

	// LockStripes sets the number of per-player submission locks.
	LockStripes int `koanf:"lock_stripes"`

	// StoreDriver selects the score store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is a file path for sqlite and a connection string for postgres.
	StoreDSN string `koanf:"store_dsn"`

	// PersistMode is sync (write before responding) or async (write-behind).
	PersistMode string `koanf:"persist_mode"`

	// PersistWorkers is the number of write-behind partitions.
	PersistWorkers int `koanf:"persist_workers"`

	// PersistQueueSize bounds each write-behind partition queue.
	PersistQueueSize int `koanf:"persist_queue_size"`

	// RateLimitPerMinute is the per-client request budget; 0 disables limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	// RateLimitBurst is the token bucket size.
	RateLimitBurst int `koanf:"rate_limit_burst"`

	// IdempotencyCacheSize bounds the Idempotency-Key cache.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// RequestTimeoutMS bounds handler execution.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		MaxTopLimit:          100,
		DefaultTopLimit:      10,
		TableShards:          16,
		LockStripes:          256,
		StoreDriver:          "memory",
		StoreDSN:             "",
		PersistMode:          "sync",
		PersistWorkers:       4,
		PersistQueueSize:     10_000,
		RateLimitPerMinute:   100,
		RateLimitBurst:       100,
		IdempotencyCacheSize: 50_000,
		RequestTimeoutMS:     5_000,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxTopLimit < 1 {
		return fmt.Errorf("%w: max_top_limit must be positive", ErrInvalidConfig)
	}
	if c.DefaultTopLimit < 1 || c.DefaultTopLimit > c.MaxTopLimit {
		return fmt.Errorf("%w: default_top_limit must be in [1, max_top_limit]", ErrInvalidConfig)
	}
	if c.TableShards < 1 || c.LockStripes < 1 {
		return fmt.Errorf("%w: table_shards and lock_stripes must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.StoreDriver) {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch strings.ToLower(c.PersistMode) {
	case "sync", "async":
	default:
		return fmt.Errorf("%w: persist_mode must be sync or async", ErrInvalidConfig)
	}
	if c.PersistWorkers < 1 || c.PersistQueueSize < 1 {
		return fmt.Errorf("%w: persist_workers and persist_queue_size must be positive", ErrInvalidConfig)
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig)
	}
	if c.RequestTimeoutMS < 1 {
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
