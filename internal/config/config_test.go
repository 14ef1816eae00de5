package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOARD_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	// An absent file named through the environment is still explicit.
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("BOARD_CONFIG_FILE", "")
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"1"}, cfg.Server.BoardIDs)
	assert.Empty(t, cfg.Server.MetricsAddr)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "board.sqlite3", cfg.Store.DSN)
	assert.Equal(t, "board:", cfg.Store.RedisPrefix)
	assert.Equal(t, "http://localhost:8080", cfg.Client.URL)
	assert.Equal(t, "1", cfg.Client.Board)
	assert.False(t, cfg.Client.VersionCheck)
	assert.False(t, cfg.UI.NotifyFailures)
	assert.Equal(t, "New section", cfg.UI.SectionPlaceholder)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  board_ids: ["1", "standup"]
store:
  driver: json
  dir: /var/lib/board
ui:
  notify_failures: true
  section_placeholder: Untitled
`), 0o600))
	t.Setenv("BOARD_SERVER_TOKEN", "from-env")
	t.Setenv("BOARD_UI_THEME", "dracula")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"1", "standup"}, cfg.Server.BoardIDs)
	assert.Equal(t, "from-env", cfg.Server.Token)
	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/board", cfg.Store.Dir)
	assert.True(t, cfg.UI.NotifyFailures)
	assert.Equal(t, "Untitled", cfg.UI.SectionPlaceholder)
	assert.Equal(t, "dracula", cfg.UI.Theme)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: mongo\n"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "store.driver")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
