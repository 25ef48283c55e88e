package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServerFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("vaultd", pflag.ContinueOnError)
	RegisterServerFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(nil, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultServerConfig(), cfg)
	assert.Equal(t, "127.0.0.1:7878", cfg.Address())
}

func TestLoadServerConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vaultd.yaml")
	content := []byte("port: 9000\nvault-capacity: 3\ncell-capacity: 50\nlog-level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CELLVAULT_VAULT_CAPACITY", "4")
	t.Setenv("CELLVAULT_PING_MAX_DELAY", "2s")

	fs := newServerFlags(t, "--port", "9100", "--ping-min-delay", "500ms")

	cfg, err := LoadServerConfig(fs, path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "flag beats config file")
	assert.Equal(t, 4, cfg.VaultCapacity, "env beats config file")
	assert.Equal(t, uint32(50), cfg.CellCapacity, "config file beats default")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.PingMinDelay)
	assert.Equal(t, 2*time.Second, cfg.PingMaxDelay)
	assert.Equal(t, DefaultHost, cfg.Host)
}

func TestLoadServerConfigMissingFile(t *testing.T) {
	_, err := LoadServerConfig(nil, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadServerConfigRejectsInvalid(t *testing.T) {
	fs := newServerFlags(t, "--vault-capacity", "0")

	_, err := LoadServerConfig(fs, "")
	assert.ErrorContains(t, err, "vault capacity")
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"port too low", func(c *ServerConfig) { c.Port = 0 }, "invalid port"},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }, "invalid port"},
		{"zero vault capacity", func(c *ServerConfig) { c.VaultCapacity = 0 }, "vault capacity"},
		{"zero cell capacity", func(c *ServerConfig) { c.CellCapacity = 0 }, "cell capacity"},
		{"negative delay", func(c *ServerConfig) { c.PingMinDelay = -time.Second }, "non-negative"},
		{"inverted delays", func(c *ServerConfig) { c.PingMinDelay = 6 * time.Second }, "exceeds"},
		{"zero delays", func(c *ServerConfig) { c.PingMinDelay, c.PingMaxDelay = 0, 0 }, ""},
		{"bad log level", func(c *ServerConfig) { c.LogLevel = "loud" }, "log level"},
		{"bad log format", func(c *ServerConfig) { c.LogFormat = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("CELLVAULT_ADDRESS", "10.0.0.5:7000")

	fs := pflag.NewFlagSet("vault", pflag.ContinueOnError)
	RegisterClientFlags(fs)
	require.NoError(t, fs.Parse([]string{"--read-timeout", "30s"}))

	cfg, err := LoadClientConfig(fs, "")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:7000", cfg.Address)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	assert.Equal(t, DefaultKeepaliveInterval, cfg.KeepaliveInterval)
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{"valid", func(*ClientConfig) {}, ""},
		{"no port", func(c *ClientConfig) { c.Address = "localhost" }, "invalid server address"},
		{"zero dial timeout", func(c *ClientConfig) { c.DialTimeout = 0 }, "dial timeout"},
		{"zero read timeout", func(c *ClientConfig) { c.ReadTimeout = 0 }, "read timeout"},
		{"keepalive disabled", func(c *ClientConfig) { c.KeepaliveInterval = 0 }, ""},
		{"negative keepalive", func(c *ClientConfig) { c.KeepaliveInterval = -time.Second }, "keepalive interval"},
		{"zero reconnect delay", func(c *ClientConfig) { c.ReconnectDelay = 0 }, "reconnect delay"},
		{"zero tcp idle", func(c *ClientConfig) { c.TCPKeepaliveIdle = 0 }, "tcp keepalive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
