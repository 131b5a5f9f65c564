// Package config loads the agent's YAML settings. Every field has a default,
// so a missing file or an empty document is a valid configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// BaseDir is where per-run workspaces are created.
	BaseDir string `yaml:"base_dir"`
	// Output is the path the JSON payload is written to.
	Output        string `yaml:"output"`
	LogLevel      string `yaml:"log_level"`
	Workers       int    `yaml:"workers"`
	KeepWorkspace bool   `yaml:"keep_workspace"`
	ArchiveName   string `yaml:"archive_name"`
}

func Default() Config {
	return Config{
		BaseDir:  os.TempDir(),
		Output:   "grabbed.json",
		LogLevel: "info",
		Workers:  1,
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if strings.TrimSpace(c.BaseDir) == "" {
		return errors.New("base_dir must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
