// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the relay server's settings. Zero fields are filled
// from [DefaultConfig] by [LoadConfig].
type Config struct {
	// Listen is the address the websocket endpoint binds to.
	Listen string `yaml:"listen"`

	// EndedRoomRetention is how long an ended room's id is remembered
	// for rejecting late joins.
	EndedRoomRetention time.Duration `yaml:"ended-room-retention"`

	// ReadLimitBytes caps a single inbound frame. Zero means no limit.
	ReadLimitBytes int64 `yaml:"read-limit-bytes"`

	// AllowedOrigins restricts websocket upgrades to the listed Origin
	// header values. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed-origins"`

	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() Config {
	return Config{
		Listen:             ":8087",
		EndedRoomRetention: 24 * time.Hour,
		ReadLimitBytes:     1 << 20,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.EndedRoomRetention <= 0 {
		return fmt.Errorf("ended-room-retention must be positive, got %s", c.EndedRoomRetention)
	}
	if c.ReadLimitBytes < 0 {
		return fmt.Errorf("read-limit-bytes must not be negative, got %d", c.ReadLimitBytes)
	}
	return nil
}
