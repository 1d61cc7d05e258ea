package config

import (
	"fmt"
	"time"

	"github.com/alex-user-go/skisearch/internal/providers"
)

// Default values for optional configuration fields.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultWriteTimeoutPad = 10 * time.Second
	DefaultMaxGroupSize    = 10
	DefaultStreamTimeout   = 60 * time.Second
	DefaultCacheBackend    = "memory"
	DefaultCacheTTL        = 30 * time.Second
	DefaultCleanupInterval = time.Minute
	DefaultSupplierName    = "hotels-simulator"
	DefaultSupplierTimeout = 30 * time.Second
	DefaultRetryBackoff    = 200 * time.Millisecond
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Default returns the configuration used when no file is given: one supplier
// at the public HotelsSimulator endpoint.
func Default() *Config {
	cfg := &Config{
		Suppliers: []SupplierConfig{{Name: DefaultSupplierName, URL: providers.DefaultSimulatorURL}},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	// Search defaults
	if c.Search.MaxGroupSize == 0 {
		c.Search.MaxGroupSize = DefaultMaxGroupSize
	}
	if c.Search.StreamTimeout == 0 {
		c.Search.StreamTimeout = DefaultStreamTimeout
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = c.Search.StreamTimeout + DefaultWriteTimeoutPad
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Cache defaults
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = DefaultCleanupInterval
	}

	// Supplier defaults
	for i := range c.Suppliers {
		s := &c.Suppliers[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("supplier-%d", i+1)
		}
		if s.Timeout == 0 {
			s.Timeout = DefaultSupplierTimeout
		}
		if s.RetryBackoff == 0 {
			s.RetryBackoff = DefaultRetryBackoff
		}
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
