// Package config holds the application configuration: an optional YAML file
// layered over struct-tag defaults, with cobra flags overriding on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/blewatch/internal/session"
	"github.com/srg/blewatch/scanner"
)

// Config is the full application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Database is the SQLite history file; empty disables persistence.
	Database string `yaml:"database" default:"blewatch.db"`

	HistoryCapacity int `yaml:"history_capacity" default:"360"`

	Scan    session.Config         `yaml:"scan"`
	Battery scanner.BatteryProfile `yaml:"battery"`
}

// Default returns the configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse at start time.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be positive, got %d", c.HistoryCapacity)
	}
	if c.Scan.ScanDuration < 0 || c.Scan.ScanTimeout < 0 {
		return fmt.Errorf("scan durations must not be negative")
	}
	return c.Battery.Validate()
}

// NewLogger creates a logger configured per the config.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
