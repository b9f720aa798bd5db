package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), config)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	// The generated file must decode back to the defaults
	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTOMLConfig(), reloaded)
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 6000\n\n[admin]\nhttp_port = 9090\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, config.Server.Port)
	assert.Equal(t, 9090, config.Admin.HTTPPort)
	assert.Equal(t, 1024*1024, config.Server.MaxLineBytes)
	assert.Equal(t, "sqlite", config.Journal.Driver)
}

func TestLoadConfigRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECHOCHAT_SERVER_PORT", "7000")
	t.Setenv("ECHOCHAT_SERVER_SSH_PORT", "7022")
	t.Setenv("ECHOCHAT_SERVER_WS_PORT", "not-a-number")
	t.Setenv("ECHOCHAT_ADMIN_HTTP_PORT", "7080")
	t.Setenv("ECHOCHAT_JOURNAL_DRIVER", "postgres")
	t.Setenv("ECHOCHAT_JOURNAL_DSN", "postgres://localhost/echochat")
	t.Setenv("ECHOCHAT_CONSOLE_TUI", "true")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, 7022, config.Server.SSHPort)
	assert.Equal(t, 0, config.Server.WSPort, "unparseable overrides are ignored")
	assert.Equal(t, 7080, config.Admin.HTTPPort)
	assert.Equal(t, "postgres", config.Journal.Driver)
	assert.True(t, config.Console.TUI)

	dsn, err := config.JournalDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/echochat", dsn)
}

func TestToServerConfig(t *testing.T) {
	config := DefaultTOMLConfig()
	config.Server.SSHPort = 2222
	config.Server.WSPort = 8081
	config.Server.MaxLineBytes = 0

	cfg := config.ToServerConfig()
	assert.Equal(t, 5555, cfg.Port)
	assert.Equal(t, 2222, cfg.SSHPort)
	assert.Equal(t, 8081, cfg.WebSocketPort)
	assert.Equal(t, "~/.echochat/ssh_host_key", cfg.SSHHostKeyPath)
	assert.Equal(t, 1024*1024, cfg.MaxLineBytes)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.echochat/journal.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".echochat", "journal.db"), got)

	got, err = ExpandHome("/var/lib/echochat.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/echochat.db", got)
}
