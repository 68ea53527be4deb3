// Package config loads the YAML process configuration shared by the
// router and storage-peer entrypoints (spec.md §2's ambient
// configuration concern; adapted from the teacher's pkg/config).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tree holds the structural parameters spec.md §4.1 fixes at
// construction: internal degree d and leaf capacity L for the
// per-table record tree every StoragePeer builds.
type Tree struct {
	Degree   int `yaml:"degree"`
	LeafCap  int `yaml:"leaf_cap"`
	Capacity int `yaml:"capacity"` // 0 means unbounded (pkg/arena)
}

// Logging points at the sink->severity settings file spec.md §6
// describes, with a fallback level used when no settings file is
// configured.
type Logging struct {
	SettingsPath string `yaml:"settings_path"`
	Level        string `yaml:"level"`
}

// Metrics configures the Prometheus/admin HTTP surface (pkg/adminhttp,
// pkg/metrics) — operational, not part of the client/peer data path.
type Metrics struct {
	Bind    string `yaml:"bind"`
	Enabled bool   `yaml:"enabled"`
}

// Config is the process configuration shared by sharddb-router and
// sharddb-peer; each entrypoint reads only the sections it needs.
type Config struct {
	Bind         string  `yaml:"bind"`
	TickInterval string  `yaml:"tick_interval"` // parsed with time.ParseDuration
	Tree         Tree    `yaml:"tree"`
	Logging      Logging `yaml:"logging"`
	Metrics      Metrics `yaml:"metrics"`
}

// DefaultConfig returns the configuration a process uses absent a
// config file: a degree-4/leaf-8 tree, an unbounded arena, console
// logging at INFO, and metrics disabled.
func DefaultConfig() *Config {
	return &Config{
		Bind:         "127.0.0.1:9090",
		TickInterval: "1s",
		Tree: Tree{
			Degree:   4,
			LeafCap:  8,
			Capacity: 0,
		},
		Logging: Logging{
			Level: "INFO",
		},
		Metrics: Metrics{
			Bind:    "127.0.0.1:9091",
			Enabled: false,
		},
	}
}

// LoadConfig reads and parses a YAML config file from path.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig writes config to configPath, creating the parent
// directory if necessary.
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigExists reports whether a config file is present at configPath.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// GetDefaultConfigPath returns the default configuration path for the
// current platform: ~/.config/sharddb/config.yaml, falling back to the
// working directory if the home directory can't be resolved.
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./sharddb.yaml"
	}
	return filepath.Join(homeDir, ".config", "sharddb", "config.yaml")
}
