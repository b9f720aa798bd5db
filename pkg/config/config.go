// Package config loads the server's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/aeolun/echochat/pkg/server"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ECHOCHAT"

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server  ServerSection  `toml:"server"`
	Admin   AdminSection   `toml:"admin"`
	Journal JournalSection `toml:"journal"`
	Console ConsoleSection `toml:"console"`
}

type ServerSection struct {
	Port         int    `toml:"port"`
	SSHPort      int    `toml:"ssh_port"`
	WSPort       int    `toml:"ws_port"`
	SSHHostKey   string `toml:"ssh_host_key"`
	MaxLineBytes int    `toml:"max_line_bytes"`
}

type AdminSection struct {
	HTTPPort int `toml:"http_port"`
}

type JournalSection struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type ConsoleSection struct {
	TUI bool `toml:"tui"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			Port:         5555,
			SSHHostKey:   "~/.echochat/ssh_host_key",
			MaxLineBytes: 1024 * 1024,
		},
		Journal: JournalSection{
			Driver: "sqlite",
			DSN:    "~/.echochat/journal.db",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates a default one if
// none exists, and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// Unwritable locations still run on defaults
		_ = writeDefaultConfig(path)
		return applyEnvOverrides(config), nil
	}

	config := DefaultTOMLConfig()
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// ExpandHome replaces a leading ~/ with the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

func envKey(section, key string) string {
	return EnvPrefix + "_" + section + "_" + key
}

func envInt(section, key string, dst *int) {
	if val := os.Getenv(envKey(section, key)); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envString(section, key string, dst *string) {
	if val := os.Getenv(envKey(section, key)); val != "" {
		*dst = val
	}
}

func envBool(section, key string, dst *bool) {
	if val := os.Getenv(envKey(section, key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Variables follow the pattern ECHOCHAT_SECTION_KEY, e.g. ECHOCHAT_SERVER_PORT=6000.
// Unparseable values are ignored.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	envInt("SERVER", "PORT", &config.Server.Port)
	envInt("SERVER", "SSH_PORT", &config.Server.SSHPort)
	envInt("SERVER", "WS_PORT", &config.Server.WSPort)
	envString("SERVER", "SSH_HOST_KEY", &config.Server.SSHHostKey)
	envInt("SERVER", "MAX_LINE_BYTES", &config.Server.MaxLineBytes)

	envInt("ADMIN", "HTTP_PORT", &config.Admin.HTTPPort)

	envString("JOURNAL", "DRIVER", &config.Journal.Driver)
	envString("JOURNAL", "DSN", &config.Journal.DSN)

	envBool("CONSOLE", "TUI", &config.Console.TUI)

	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# EchoChat Server Configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# ECHOCHAT_SECTION_KEY (e.g., ECHOCHAT_SERVER_PORT=6000)
# A port given on the command line overrides [server] port.

[server]
# Port for line-oriented TCP clients
port = 5555

# Port for SSH clients (0 = disabled)
ssh_port = 0

# Port for WebSocket clients on /ws (0 = disabled)
ws_port = 0

# Path to SSH host key file, generated on first use
ssh_host_key = "~/.echochat/ssh_host_key"

# Longest accepted client line in bytes; longer lines disconnect the client
max_line_bytes = 1048576

[admin]
# Port for the admin HTTP API (/health, /status, /participants, /metrics)
# Set to 0 to disable
http_port = 0

[journal]
# Audit trail of lifecycle changes and operator commands
# Driver is "sqlite", "postgres" or "" to disable
driver = "sqlite"

# SQLite file path or PostgreSQL connection string
dsn = "~/.echochat/journal.db"

[console]
# Full-screen terminal console instead of a plain line prompt
tui = false
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to server.ServerConfig
func (c *TOMLConfig) ToServerConfig() server.ServerConfig {
	cfg := server.DefaultConfig()

	if c.Server.Port != 0 {
		cfg.Port = c.Server.Port
	}
	cfg.SSHPort = c.Server.SSHPort
	cfg.WebSocketPort = c.Server.WSPort

	if strings.TrimSpace(c.Server.SSHHostKey) != "" {
		cfg.SSHHostKeyPath = c.Server.SSHHostKey
	}
	if c.Server.MaxLineBytes > 0 {
		cfg.MaxLineBytes = c.Server.MaxLineBytes
	}

	return cfg
}

// JournalDSN returns the journal DSN with ~ expanded for file-backed drivers
func (c *TOMLConfig) JournalDSN() (string, error) {
	if c.Journal.Driver != "sqlite" {
		return c.Journal.DSN, nil
	}
	return ExpandHome(c.Journal.DSN)
}
