// Package config loads service settings from YAML and the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Config is the root configuration of the search service.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Search    SearchConfig     `yaml:"search"`
	Cache     CacheConfig      `yaml:"cache"`
	Suppliers []SupplierConfig `yaml:"suppliers"`
	Log       LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // must exceed search.stream_timeout
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SearchConfig holds aggregation engine settings.
type SearchConfig struct {
	MaxGroupSize   int           `yaml:"max_group_size"`
	StreamTimeout  time.Duration `yaml:"stream_timeout"`
	SubRunTimeout  time.Duration `yaml:"sub_run_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// CacheConfig holds batch result cache settings.
type CacheConfig struct {
	Backend         string        `yaml:"backend"` // memory or redis
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	RedisURL        string        `yaml:"redis_url"`
}

// SupplierConfig describes one HotelsSimulator-compatible supplier.
type SupplierConfig struct {
	Name         string        `yaml:"name"`
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 disables
	Burst        int           `yaml:"burst"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
