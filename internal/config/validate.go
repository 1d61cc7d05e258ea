package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.WriteTimeout <= c.Search.StreamTimeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed search.stream_timeout (%s)",
			c.Server.WriteTimeout, c.Search.StreamTimeout)
	}

	if c.Search.MaxGroupSize < 1 {
		return errors.New("search.max_group_size must be >= 1")
	}
	if c.Search.StreamTimeout <= 0 {
		return errors.New("search.stream_timeout must be positive")
	}
	if c.Search.SubRunTimeout < 0 {
		return errors.New("search.sub_run_timeout must be >= 0")
	}
	if c.Search.MaxConcurrency < 0 {
		return errors.New("search.max_concurrency must be >= 0")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return errors.New("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}

	names := make(map[string]struct{}, len(c.Suppliers))
	for i, s := range c.Suppliers {
		if err := s.validate(fmt.Sprintf("suppliers[%d]", i)); err != nil {
			return err
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("suppliers[%d].name %q is not unique", i, s.Name)
		}
		names[s.Name] = struct{}{}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func (s *SupplierConfig) validate(prefix string) error {
	if s.URL == "" {
		return fmt.Errorf("%s.url is required", prefix)
	}
	u, err := url.ParseRequestURI(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s.url must be an absolute http(s) URL, got %q", prefix, s.URL)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%s.timeout must be >= 0", prefix)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be >= 0", prefix)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("%s.rate_limit must be >= 0", prefix)
	}
	if s.Burst < 0 {
		return fmt.Errorf("%s.burst must be >= 0", prefix)
	}
	return nil
}
