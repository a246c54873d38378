// Package config holds the settings of the donsched command.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/donsched"
)

// Config holds configuration for the donsched command. A scenario file may
// override Policy and Seed.
type Config struct {
	Policy    string `yaml:"policy"`     // priority or lottery
	Seed      uint64 `yaml:"seed"`       // lottery seed, 0 for a random seed
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	TraceDB   string `yaml:"trace_db"`   // SQLite trace path, empty to disable
	Workers   int    `yaml:"workers"`    // parallel trials
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Policy:    "priority",
		LogLevel:  "info",
		LogFormat: "text",
		Workers:   4,
	}
}

// Load reads a YAML config file on top of [Default]. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if !donsched.ParsePolicy(c.Policy).IsValid() {
		return fmt.Errorf("config: unknown policy %q", c.Policy)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
