package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Scanning
	ScanTimeout time.Duration `yaml:"scan_timeout" default:"10s"`
	NamePrefix  string        `yaml:"name_prefix"`

	// Connection
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"5s"`
	WriteRate      float64       `yaml:"write_rate" default:"20"` // writes per second
	WriteBurst     int           `yaml:"write_burst" default:"4"`
	ServiceUUID    string        `yaml:"service_uuid" default:"fff0"`

	PreviewInterval time.Duration `yaml:"preview_interval" default:"300ms"`

	// SettingsPath overrides the persisted settings location; empty means the default.
	SettingsPath string `yaml:"settings_path"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns <user config dir>/lotus/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "lotus", "config.yaml"), nil
}

// Load returns the defaults overlaid with the YAML file at path.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative")
	}
	if c.ConnectTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("connect_timeout and write_timeout must be positive")
	}
	if c.WriteRate <= 0 || c.WriteBurst < 1 {
		return fmt.Errorf("write_rate must be positive and write_burst at least 1")
	}
	if c.PreviewInterval <= 0 {
		return fmt.Errorf("preview_interval must be positive")
	}
	return nil
}

// Level returns the parsed log level, falling back to Info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
