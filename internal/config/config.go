package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appDir = "mailsync"

// Config holds all configuration for mailsync
type Config struct {
	Credentials string `json:"credentials" yaml:"credentials"`
	Token       string `json:"token" yaml:"token"`

	// Account is the mailbox identity; empty means the authenticated Gmail account
	Account string `json:"account" yaml:"account"`

	// Logging
	LogFile string `json:"log_file" yaml:"log_file"`

	Sync   SyncConfig   `json:"sync" yaml:"sync"`
	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Layout LayoutConfig `json:"layout" yaml:"layout"`
	Keys   KeyBindings  `json:"keys" yaml:"keys"`
}

// SyncConfig tunes the sync engine. Durations are Go duration strings.
type SyncConfig struct {
	PollInterval        string `json:"poll_interval" yaml:"poll_interval"`
	PollCeiling         string `json:"poll_ceiling" yaml:"poll_ceiling"`
	SelectionGrace      string `json:"selection_grace" yaml:"selection_grace"`
	FeedInterval        string `json:"feed_interval" yaml:"feed_interval"`
	RequestTimeout      string `json:"request_timeout" yaml:"request_timeout"`
	MutationConcurrency int    `json:"mutation_concurrency" yaml:"mutation_concurrency"`
	MaxResults          int64  `json:"max_results" yaml:"max_results"`
	// InitialFolder is the folder shown on start (inbox, sent, ...)
	InitialFolder string `json:"initial_folder" yaml:"initial_folder"`
}

// CacheConfig controls the local snapshot cache
type CacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// LayoutConfig defines layout-specific configuration
type LayoutConfig struct {
	ShowBorders bool `json:"show_borders" yaml:"show_borders"`
	// ListRatio is the share of the screen height given to the message list
	ListRatio int `json:"list_ratio" yaml:"list_ratio"`
	// Theme is a YAML theme file (relative to the config dir or absolute)
	Theme string `json:"theme" yaml:"theme"`
}

// KeyBindings defines keyboard shortcuts for the TUI
type KeyBindings struct {
	Compose    string `json:"compose" yaml:"compose"`
	Refresh    string `json:"refresh" yaml:"refresh"`
	Search     string `json:"search" yaml:"search"`
	ToggleRead string `json:"toggle_read" yaml:"toggle_read"`
	Star       string `json:"star" yaml:"star"`
	Trash      string `json:"trash" yaml:"trash"`
	Archive    string `json:"archive" yaml:"archive"`
	Spam       string `json:"spam" yaml:"spam"`
	Select     string `json:"select" yaml:"select"`
	SelectAll  string `json:"select_all" yaml:"select_all"`
	NextFolder string `json:"next_folder" yaml:"next_folder"`
	PrevFolder string `json:"prev_folder" yaml:"prev_folder"`
	Debug      string `json:"debug" yaml:"debug"`
	Quit       string `json:"quit" yaml:"quit"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sync:   DefaultSyncConfig(),
		Cache:  CacheConfig{Enabled: true},
		Layout: DefaultLayoutConfig(),
		Keys:   DefaultKeyBindings(),
	}
}

// DefaultSyncConfig returns the default sync timings
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:        "2s",
		PollCeiling:         "30s",
		SelectionGrace:      "500ms",
		FeedInterval:        "10s",
		RequestTimeout:      "20s",
		MutationConcurrency: 10,
		MaxResults:          100,
		InitialFolder:       "inbox",
	}
}

// DefaultLayoutConfig returns default layout configuration
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		ShowBorders: true,
		ListRatio:   40,
	}
}

// DefaultKeyBindings returns default keyboard shortcuts
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Compose:    "c",
		Refresh:    "R",
		Search:     "/",
		ToggleRead: "t",
		Star:       "s",
		Trash:      "d",
		Archive:    "a",
		Spam:       "!",
		Select:     "space",
		SelectAll:  "*",
		NextFolder: "]",
		PrevFolder: "[",
		Debug:      "D",
		Quit:       "q",
	}
}

// LoadConfig loads configuration from file over the defaults. A missing file
// yields the defaults; a malformed one is an error. Files ending in .yaml or
// .yml are read as YAML, everything else as JSON.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// SaveConfig saves the configuration to a file in the format its extension names
func (c *Config) SaveConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ConfigDir returns the configuration directory
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appDir)
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// DefaultCredentialPaths returns the default paths for credentials and token
func DefaultCredentialPaths() (string, string) {
	dir := ConfigDir()
	if dir == "" {
		return "", ""
	}
	return filepath.Join(dir, "credentials.json"), filepath.Join(dir, "token.json")
}

// DefaultCacheDir returns the default cache directory path
func DefaultCacheDir() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "cache")
}

// DefaultLogPath returns the default log file path
func DefaultLogPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "mailsync.log")
}

// CachePath returns the sqlite cache file
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return ExpandPath(c.Cache.Path)
	}
	dir := DefaultCacheDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "mailsync.db")
}

// ExpandPath expands a leading ~ to the home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// ResolvePath resolves a path relative to the config directory
func ResolvePath(path string) string {
	path = ExpandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if dir := ConfigDir(); dir != "" {
		return filepath.Join(dir, path)
	}
	return path
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// GetPollInterval returns the bootstrap poll interval
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Sync.PollInterval, 2*time.Second)
}

// GetPollCeiling returns the bootstrap poll time ceiling
func (c *Config) GetPollCeiling() time.Duration {
	return parseDuration(c.Sync.PollCeiling, 30*time.Second)
}

// GetSelectionGrace returns the delay before a multi-select is cleared
func (c *Config) GetSelectionGrace() time.Duration {
	return parseDuration(c.Sync.SelectionGrace, 500*time.Millisecond)
}

// GetFeedInterval returns the Gmail history polling interval
func (c *Config) GetFeedInterval() time.Duration {
	return parseDuration(c.Sync.FeedInterval, 10*time.Second)
}

// GetRequestTimeout returns the per-request Gmail timeout
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Sync.RequestTimeout, 20*time.Second)
}

// GetMutationConcurrency returns how many flag calls run at once
func (c *Config) GetMutationConcurrency() int {
	if c.Sync.MutationConcurrency > 0 {
		return c.Sync.MutationConcurrency
	}
	return 10
}

// GetMaxResults returns how many recent messages are loaded per fetch
func (c *Config) GetMaxResults() int64 {
	if c.Sync.MaxResults > 0 {
		return c.Sync.MaxResults
	}
	return 100
}
