// Package config loads, defaults and validates the application
// configuration: strict YAML with environment overrides, checked
// against an embedded CUE schema before any data is touched.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SoftComply/marketing-automation/internal/engine"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Log configures the dual-output logger.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// File receives the JSON log stream; empty disables it.
	File string `yaml:"file"`
}

// Loop configures `sync --loop`.
type Loop struct {
	Interval    Duration `yaml:"interval"`
	MaxFailures int      `yaml:"maxFailures"`
}

// Config is the full application configuration.
type Config struct {
	// Database is the SQLite path for snapshots and action logs.
	Database string `yaml:"database"`

	// KeepSnapshots bounds how many snapshots prune retains.
	KeepSnapshots int `yaml:"keepSnapshots"`

	Log    Log           `yaml:"log"`
	Loop   Loop          `yaml:"loop"`
	Engine engine.Config `yaml:"engine"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:      "marketing-automation.db",
		KeepSnapshots: 10,
		Log:           Log{Level: "info"},
		Loop:          Loop{Interval: Duration(5 * time.Minute), MaxFailures: 3},
	}
}

// Load reads, defaults, env-overrides and validates a configuration
// file. An empty path yields the defaults. Unknown YAML keys are
// rejected; schema violations fail before any data is touched.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, err
		}
		if err := decodeStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// applyEnv applies MA_* environment overrides over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MA_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("MA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MA_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if cfg.Loop.MaxFailures < 1 {
		return fmt.Errorf("loop.maxFailures must be >= 1, got %d", cfg.Loop.MaxFailures)
	}
	if cfg.KeepSnapshots < 0 {
		return fmt.Errorf("keepSnapshots must be >= 0, got %d", cfg.KeepSnapshots)
	}
	return nil
}
