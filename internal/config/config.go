// Package config loads and validates HEARTH's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all HEARTH configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Logging configuration, in the same shape as internal/logging's
	// settings. internal/logging does not read this struct; it loads its
	// own copy from .hearth/config.json.
	Logging LoggingConfig `yaml:"logging"`

	// LiveMode holds a boot-reason annotation for the live-mode gate.
	LiveMode LiveModeConfig `yaml:"live_mode"`

	// Tokens holds a token-duration bound. Token construction does not
	// read it.
	Tokens TokenDefaultsConfig `yaml:"tokens"`
}

// LoggingConfig mirrors internal/logging's on-disk config shape.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// LiveModeConfig carries a boot-reason annotation for the live-mode gate.
// The gate always boots DRY_RUN (fail-closed) with the reason
// "initialization"; livemode.New does not read InitialReason.
type LiveModeConfig struct {
	InitialReason string `yaml:"initial_reason"`
}

// TokenDefaultsConfig carries a maximum token duration. internal/token does
// not read it: token construction enforces its own fixed 1..1800 second
// range.
type TokenDefaultsConfig struct {
	MaxDurationSeconds int `yaml:"max_duration_seconds"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "hearth",
		Version: "0.1.0",

		Logging: LoggingConfig{
			DebugMode:  false,
			Level:      "info",
			JSONFormat: true,
		},

		LiveMode: LiveModeConfig{
			InitialReason: "system boot: default to DRY_RUN",
		},

		Tokens: TokenDefaultsConfig{
			MaxDurationSeconds: 1800,
		},
	}
}

// Load reads configuration from <workspace>/.hearth/config.yaml, falling
// back to defaults when the file does not exist.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".hearth", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
