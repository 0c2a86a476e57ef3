// Package config loads client configuration from an optional yaml file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the client configuration.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Gateway struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"gateway"`

	Guest struct {
		TickInterval     time.Duration `yaml:"tick_interval"`
		SyncInterval     time.Duration `yaml:"sync_interval"`
		InitialSyncDelay time.Duration `yaml:"initial_sync_delay"`
		WarningFraction  float64       `yaml:"warning_fraction"`
	} `yaml:"guest"`

	Snapshot struct {
		Path string `yaml:"path"`
	} `yaml:"snapshot"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.API.BaseURL = "http://localhost:8080"
	cfg.API.Timeout = 30 * time.Second
	cfg.Gateway.Addr = "127.0.0.1:7070"
	cfg.Gateway.AllowedOrigins = []string{"*"}
	cfg.Guest.TickInterval = time.Second
	cfg.Guest.SyncInterval = 30 * time.Second
	cfg.Guest.InitialSyncDelay = 2 * time.Second
	cfg.Guest.WarningFraction = 0.10
	return &cfg
}

// Load reads the yaml file at path (skipped when path is empty), then
// applies environment overrides, then validates. Env vars always win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("VAULTDRIVE_API_URL", c.API.BaseURL)
	c.Gateway.Addr = getEnv("VAULTDRIVE_GATEWAY_ADDR", c.Gateway.Addr)
	c.Snapshot.Path = getEnv("VAULTDRIVE_SNAPSHOT_PATH", c.Snapshot.Path)
	c.Guest.SyncInterval = getEnvAsDuration("VAULTDRIVE_SYNC_INTERVAL", c.Guest.SyncInterval)
	c.Guest.InitialSyncDelay = getEnvAsDuration("VAULTDRIVE_INITIAL_SYNC_DELAY", c.Guest.InitialSyncDelay)
	c.Guest.WarningFraction = getEnvAsFloat("VAULTDRIVE_WARNING_FRACTION", c.Guest.WarningFraction)
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required")
	}
	if c.Guest.WarningFraction <= 0 || c.Guest.WarningFraction >= 1 {
		return fmt.Errorf("guest.warning_fraction must be in (0, 1), got %v", c.Guest.WarningFraction)
	}
	if c.Guest.TickInterval <= 0 || c.Guest.SyncInterval <= 0 {
		return fmt.Errorf("guest intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
