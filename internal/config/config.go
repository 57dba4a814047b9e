// Package config resolves runtime settings from defaults, an optional YAML
// config file, a .env file and the process environment, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	RelayURL       string        `yaml:"relay_url"`
	Model          string        `yaml:"model"`
	DataDir        string        `yaml:"data_dir"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	LogLevel       string        `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RelayURL:       "ws://localhost:3001/ws",
		Model:          "sonnet",
		DataDir:        "~/.relaysync",
		ReconnectDelay: 1500 * time.Millisecond,
		LogLevel:       "info",
	}
}

// Load resolves the effective configuration. A missing config file or .env
// is not an error; a malformed config file is.
func Load() (Config, error) {
	cfg := Default()

	// .env values become visible to the env lookups below.
	_ = godotenv.Load()

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if v := os.Getenv("RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("RELAYSYNC_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("RELAYSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RELAYSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RELAYSYNC_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse RELAYSYNC_RECONNECT_DELAY: %w", err)
		}
		cfg.ReconnectDelay = d
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	return cfg, nil
}

// PendingDBPath returns the location of the durable pending-write store.
func (c Config) PendingDBPath() string {
	return filepath.Join(c.DataDir, "pending.db")
}

func configFilePath() string {
	if v := os.Getenv("RELAYSYNC_CONFIG"); v != "" {
		return ExpandPath(v)
	}
	return ExpandPath("~/.relaysync/config.yaml")
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
