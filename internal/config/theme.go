package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type themeFile struct {
	Mailsync *ColorsConfig `yaml:"mailsync"`
}

// LoadTheme reads a YAML theme. Colors the file leaves out keep their
// default value.
func LoadTheme(path string) (*ColorsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}
	var raw struct {
		Mailsync *yaml.Node `yaml:"mailsync"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}
	if raw.Mailsync == nil {
		return nil, fmt.Errorf("invalid theme file: missing mailsync section")
	}
	theme := DefaultColors()
	if err := raw.Mailsync.Decode(theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}
	return theme, nil
}

// SaveTheme writes theme as YAML
func SaveTheme(theme *ColorsConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create themes directory: %w", err)
	}
	data, err := yaml.Marshal(themeFile{Mailsync: theme})
	if err != nil {
		return fmt.Errorf("failed to marshal theme: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write theme file: %w", err)
	}
	return nil
}

// Colors returns the configured theme, or the defaults when none is set or
// it cannot be loaded
func (c *Config) Colors() (*ColorsConfig, error) {
	if c.Layout.Theme == "" {
		return DefaultColors(), nil
	}
	theme, err := LoadTheme(ResolvePath(c.Layout.Theme))
	if err != nil {
		return DefaultColors(), err
	}
	return theme, nil
}
