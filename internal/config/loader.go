package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvConfigPath  = "CONFIG_PATH"
	EnvSupplierURL = "SUPPLIER_URL"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// FromEnv loads a .env file when present, then the YAML file named by
// CONFIG_PATH. Without CONFIG_PATH the defaults are used, with the supplier
// URL taken from SUPPLIER_URL when set.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	if path := os.Getenv(EnvConfigPath); path != "" {
		return LoadAndValidate(path)
	}

	cfg := Default()
	if u := os.Getenv(EnvSupplierURL); u != "" {
		cfg.Suppliers[0].URL = u
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
