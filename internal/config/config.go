// Package config provides configuration management for memsync.
// It supports YAML and TOML configuration files, environment variables, and
// sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/memsync/internal/sync"
)

// Config represents the complete memsync configuration.
type Config struct {
	// Sync configures default synchronization behavior
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Storage configures the event log location
	Storage StorageConfig `yaml:"storage" toml:"storage"`

	// History configures bounded history sizes
	History HistoryConfig `yaml:"history" toml:"history"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// AutoSyncInterval is the elapsed time after which a sync is due
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval" toml:"auto_sync_interval"`
	// MessageThreshold is the message count after which a sync is due
	MessageThreshold int `yaml:"message_threshold" toml:"message_threshold"`
	// DefaultStrategy is the default conflict resolution strategy
	DefaultStrategy string `yaml:"default_strategy" toml:"default_strategy"`
	// AutoResolveThreshold is the recency gap making a conflict auto-resolvable
	AutoResolveThreshold time.Duration `yaml:"auto_resolve_threshold" toml:"auto_resolve_threshold"`
	// DefaultMode is the default sync mode
	DefaultMode string `yaml:"default_mode" toml:"default_mode"`
}

// StorageConfig holds event log storage settings.
type StorageConfig struct {
	// BasePath is the root directory for event log files; empty keeps
	// events in memory
	BasePath string `yaml:"base_path" toml:"base_path"`
}

// HistoryConfig holds bounded history settings.
type HistoryConfig struct {
	// ResolutionLimit bounds the conflict resolution history
	ResolutionLimit int `yaml:"resolution_limit" toml:"resolution_limit"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default output format (text, json)
	Format string `yaml:"format" toml:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			AutoSyncInterval:     sync.DefaultAutoSyncInterval,
			MessageThreshold:     sync.DefaultAutoSyncMessageThreshold,
			DefaultStrategy:      string(sync.StrategyLastWriteWins),
			AutoResolveThreshold: time.Minute,
			DefaultMode:          string(sync.ModeFull),
		},
		History: HistoryConfig{
			ResolutionLimit: 100,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
	}
}

// Load reads a configuration file, applying defaults for missing values and
// environment overrides on top. The format is selected by extension: .toml
// uses TOML, everything else is parsed as YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// #nosec G304 - path is supplied by the user running the CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads the config file when path is non-empty, otherwise
// returns defaults with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := DefaultConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from MEMSYNC_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMSYNC_AUTO_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sync.AutoSyncInterval = d
		}
	}
	if v := os.Getenv("MEMSYNC_MESSAGE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.MessageThreshold = n
		}
	}
	if v := os.Getenv("MEMSYNC_DEFAULT_STRATEGY"); v != "" {
		c.Sync.DefaultStrategy = v
	}
	if v := os.Getenv("MEMSYNC_AUTO_RESOLVE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sync.AutoResolveThreshold = d
		}
	}
	if v := os.Getenv("MEMSYNC_DEFAULT_MODE"); v != "" {
		c.Sync.DefaultMode = v
	}
	if v := os.Getenv("MEMSYNC_BASE_PATH"); v != "" {
		c.Storage.BasePath = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Sync.AutoSyncInterval <= 0 {
		return fmt.Errorf("auto_sync_interval must be positive, got %s", c.Sync.AutoSyncInterval)
	}
	if c.Sync.MessageThreshold <= 0 {
		return fmt.Errorf("message_threshold must be positive, got %d", c.Sync.MessageThreshold)
	}
	if !sync.ResolutionStrategy(c.Sync.DefaultStrategy).IsValid() {
		return fmt.Errorf("unknown default_strategy: %q", c.Sync.DefaultStrategy)
	}
	if !sync.Mode(c.Sync.DefaultMode).IsValid() {
		return fmt.Errorf("unknown default_mode: %q", c.Sync.DefaultMode)
	}
	return nil
}

// EngineOptions converts the configuration into engine options for the
// given conversation and session.
func (c *Config) EngineOptions(conversationID, sessionID string) sync.Options {
	return sync.Options{
		ConversationID:           conversationID,
		SessionID:                sessionID,
		BasePath:                 c.Storage.BasePath,
		AutoSyncInterval:         c.Sync.AutoSyncInterval,
		AutoSyncMessageThreshold: c.Sync.MessageThreshold,
		DefaultStrategy:          sync.ResolutionStrategy(c.Sync.DefaultStrategy),
		AutoResolveThreshold:     c.Sync.AutoResolveThreshold,
	}
}
