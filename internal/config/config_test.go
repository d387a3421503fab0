package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/derailed/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Layout.ShowBorders)
	assert.Equal(t, "inbox", cfg.Sync.InitialFolder)
	assert.NotEmpty(t, cfg.Keys.Archive)
}

func TestDefaultKeyBindings(t *testing.T) {
	keys := DefaultKeyBindings()

	assert.Equal(t, "c", keys.Compose)
	assert.Equal(t, "a", keys.Archive)
	assert.Equal(t, "d", keys.Trash)
	assert.Equal(t, "q", keys.Quit)
	assert.Equal(t, "space", keys.Select)
}

func TestDurationAccessors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.GetPollInterval())
	assert.Equal(t, 30*time.Second, cfg.GetPollCeiling())
	assert.Equal(t, 500*time.Millisecond, cfg.GetSelectionGrace())
	assert.Equal(t, 10*time.Second, cfg.GetFeedInterval())
	assert.Equal(t, 20*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 10, cfg.GetMutationConcurrency())
	assert.Equal(t, int64(100), cfg.GetMaxResults())

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"custom", "750ms", 750 * time.Millisecond},
		{"empty", "", 2 * time.Second},
		{"garbage", "soon", 2 * time.Second},
		{"negative", "-1s", 2 * time.Second},
		{"zero", "0s", 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Sync: SyncConfig{PollInterval: tt.value}}
			assert.Equal(t, tt.want, cfg.GetPollInterval())
		})
	}

	empty := &Config{}
	assert.Equal(t, 10, empty.GetMutationConcurrency())
	assert.Equal(t, int64(100), empty.GetMaxResults())
}

func TestDefaultPaths(t *testing.T) {
	if path := DefaultConfigPath(); path != "" {
		assert.Contains(t, path, ".config")
		assert.Contains(t, path, "mailsync")
		assert.Contains(t, path, "config.json")
	}

	credPath, tokenPath := DefaultCredentialPaths()
	if credPath != "" && tokenPath != "" {
		assert.Equal(t, "credentials.json", filepath.Base(credPath))
		assert.Equal(t, "token.json", filepath.Base(tokenPath))
		assert.Contains(t, credPath, "mailsync")
	}

	if dir := DefaultCacheDir(); dir != "" {
		assert.Equal(t, "cache", filepath.Base(dir))
	}
	if path := DefaultLogPath(); path != "" {
		assert.Equal(t, "mailsync.log", filepath.Base(path))
	}
}

func TestCachePath(t *testing.T) {
	cfg := DefaultConfig()
	if p := cfg.CachePath(); p != "" {
		assert.Equal(t, "mailsync.db", filepath.Base(p))
	}
	cfg.Cache.Path = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.CachePath())
}

func TestExpandAndResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandPath("~/x/y"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, "/abs/theme.yaml", ResolvePath("/abs/theme.yaml"))
	assert.Equal(t, filepath.Join(ConfigDir(), "themes", "dark.yaml"), ResolvePath("themes/dark.yaml"))
	assert.Equal(t, "", ResolvePath(""))
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/config.json")
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_JSONFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(map[string]any{
		"credentials": "test-creds",
		"account":     "me@example.com",
		"sync":        map[string]any{"poll_interval": "5s"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configFile, data, 0o600))

	cfg, err := LoadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "test-creds", cfg.Credentials)
	assert.Equal(t, "me@example.com", cfg.Account)
	assert.Equal(t, 5*time.Second, cfg.GetPollInterval())
	assert.Equal(t, "30s", cfg.Sync.PollCeiling, "unset fields keep defaults")
	assert.Equal(t, "a", cfg.Keys.Archive)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
account: me@example.com
sync:
  poll_ceiling: 45s
  mutation_concurrency: 3
cache:
  enabled: false
keys:
  archive: e
`
	require.NoError(t, os.WriteFile(configFile, []byte(yamlDoc), 0o600))

	cfg, err := LoadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", cfg.Account)
	assert.Equal(t, 45*time.Second, cfg.GetPollCeiling())
	assert.Equal(t, 3, cfg.GetMutationConcurrency())
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "e", cfg.Keys.Archive)
	assert.Equal(t, "d", cfg.Keys.Trash)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"invalid.json", "invalid.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("{invalid: [content"), 0o600))
		cfg, err := LoadConfig(path)
		assert.Error(t, err, name)
		assert.Nil(t, cfg)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Credentials = "saved-creds"
			cfg.Sync.FeedInterval = "1m"

			require.NoError(t, cfg.SaveConfig(path))
			assert.FileExists(t, path)

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestColor(t *testing.T) {
	assert.Equal(t, "#ff5555", NewColor("#ff5555").String())
	assert.Equal(t, "-", DefaultColor.String())
	assert.Equal(t, "-", TransparentColor.String())
	assert.Equal(t, tcell.ColorDefault, DefaultColor.Color())
}

func TestTheme_RoundTripAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "themes", "dark.yaml")
	theme := DefaultColors()
	theme.List.Unread = NewColor("#123456")
	require.NoError(t, SaveTheme(theme, path))

	loaded, err := LoadTheme(path)
	require.NoError(t, err)
	assert.Equal(t, theme, loaded)

	partial := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("mailsync:\n  status:\n    errorColor: \"#000001\"\n"), 0o600))
	loaded, err = LoadTheme(partial)
	require.NoError(t, err)
	assert.Equal(t, NewColor("#000001"), loaded.Status.Error)
	assert.Equal(t, DefaultColors().List, loaded.List)

	_, err = LoadTheme(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Colors(t *testing.T) {
	cfg := DefaultConfig()
	colors, err := cfg.Colors()
	require.NoError(t, err)
	assert.Equal(t, DefaultColors(), colors)

	cfg.Layout.Theme = filepath.Join(t.TempDir(), "missing.yaml")
	colors, err = cfg.Colors()
	assert.Error(t, err)
	assert.Equal(t, DefaultColors(), colors)
}
