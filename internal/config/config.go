// Package config provides configuration management for Strata.
//
// Config file locations (priority order):
//  1. $STRATA_CONFIG
//  2. ./strata.yaml
//  3. ~/.config/strata/config.yaml
//  4. /etc/strata/config.yaml
//
// Individual settings can be overridden with STRATA_* environment
// variables, e.g. STRATA_DB_PASSWORD or STRATA_ADDR.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config file - environment and defaults only
		cfg := &Config{}
		cfg.applyEnvironment()
		cfg.applyDefaults()
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvironment()
	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.AppLabel == "" {
		c.Server.AppLabel = "strata"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "strata"
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.PoolSize == 0 {
		c.Database.PoolSize = 4
	}
	if c.Layers.Path == "" {
		c.Layers.Path = "layers.yaml"
	}
	if c.Attachments.SweepInterval == 0 {
		c.Attachments.SweepInterval = Duration(time.Hour)
	}
	if c.Attachments.SweepAge == 0 {
		c.Attachments.SweepAge = Duration(24 * time.Hour)
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
}
