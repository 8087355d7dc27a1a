// Package config loads the sendtap YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable parameters of a session and the CLI.
type Config struct {
	// Filter is the target substring that selects calls for observation.
	Filter string `yaml:"filter"`
	// LogCapacity bounds the in-memory log. 0 means unbounded.
	LogCapacity int `yaml:"log_capacity"`
	// AuditLog is the JSONL file entries are persisted to. Empty disables it.
	AuditLog    string `yaml:"audit_log"`
	TemplatesDB string `yaml:"templates_db"`
	LogLevel    string `yaml:"log_level"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Filter:      "messages",
		LogCapacity: 1000,
		TemplatesDB: filepath.Join(DefaultDir(), "templates.db"),
		LogLevel:    "info",
	}
}

// DefaultDir returns the sendtap state directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sendtap")
	}
	return filepath.Join(home, ".sendtap")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the config at path. Empty path falls back to DefaultPath.
// A missing file yields defaults; YAML overwrites only the fields it sets.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LogCapacity < 0 {
		errs = append(errs, fmt.Errorf("log_capacity must be >= 0, got %d", c.LogCapacity))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel. Empty means info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Save writes cfg as YAML to path, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
