package cli

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration file. Flags override it.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`

	// Author is the identity stamped onto every write.
	Author string `yaml:"author"`

	// LogLevel is one of debug, info, warn, error. Default: warn, so
	// command output stays clean unless asked for.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		DB:       "crewbase.db",
		Author:   "admin",
		LogLevel: "warn",
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields
// with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level name to a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
}
