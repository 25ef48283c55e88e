// Package config provides configuration management for CellVault server and client components.
//
// The package supports configuration through multiple sources with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables
//  3. Config file (optional, given with --config; YAML, TOML or JSON)
//  4. Default values (lowest priority)
//
// Server Configuration:
//   - Listen host and port
//   - Vault slot capacity and per-cell byte capacity
//   - PING delay bounds
//   - Logging level and format
//
// Client Configuration:
//   - Server address
//   - Dial and read timeouts
//   - TCP keepalive, protocol keepalive and reconnect policy
//
// Example server usage:
//
//	fs := pflag.NewFlagSet("vaultd", pflag.ExitOnError)
//	config.RegisterServerFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//
//	cfg, err := config.LoadServerConfig(fs, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv := server.New(cfg, logger)
//
// Environment variables are prefixed with "CELLVAULT_" and use uppercase names
// with underscores. For example, the vault capacity can be set with
// CELLVAULT_VAULT_CAPACITY=20.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default server configuration constants
const (
	DefaultHost          = "127.0.0.1"
	DefaultServerPort    = 7878
	DefaultVaultCapacity = 10
	DefaultCellCapacity  = 100
	DefaultPingMinDelay  = time.Second
	DefaultPingMaxDelay  = 5 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "auto"
)

// Default client configuration constants
const (
	DefaultDialTimeout          = 5 * time.Second
	DefaultReadTimeout          = 10 * time.Second
	DefaultKeepaliveInterval    = 10 * time.Second
	DefaultReconnectDelay       = 2 * time.Second
	DefaultTCPKeepaliveIdle     = 10 * time.Second
	DefaultTCPKeepaliveInterval = 5 * time.Second
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CELLVAULT"

// Configuration keys. Flags carry the same names.
const (
	KeyHost          = "host"
	KeyPort          = "port"
	KeyVaultCapacity = "vault-capacity"
	KeyCellCapacity  = "cell-capacity"
	KeyPingMinDelay  = "ping-min-delay"
	KeyPingMaxDelay  = "ping-max-delay"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"

	KeyAddress              = "address"
	KeyDialTimeout          = "dial-timeout"
	KeyReadTimeout          = "read-timeout"
	KeyKeepaliveInterval    = "keepalive-interval"
	KeyReconnectDelay       = "reconnect-delay"
	KeyTCPKeepaliveIdle     = "tcp-keepalive-idle"
	KeyTCPKeepaliveInterval = "tcp-keepalive-interval"
)

// ServerConfig holds all configuration options for a CellVault server instance.
//
// Example:
//
//	cfg := &ServerConfig{
//		Host:          "127.0.0.1",
//		Port:          7878,
//		VaultCapacity: 10,
//		CellCapacity:  100,
//		PingMinDelay:  time.Second,
//		PingMaxDelay:  5 * time.Second,
//		LogLevel:      "info",
//		LogFormat:     "auto",
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
type ServerConfig struct {
	Host          string        // Host address to bind to (default: "127.0.0.1")
	LogLevel      string        // Log level: debug, info, warn, error (default: "info")
	LogFormat     string        // Log format: auto, text, json (default: "auto")
	Port          int           // TCP port to listen on (default: 7878)
	VaultCapacity int           // Maximum number of distinct cell ids (default: 10)
	PingMinDelay  time.Duration // Lower bound of the PING delay (default: 1s)
	PingMaxDelay  time.Duration // Upper bound of the PING delay (default: 5s)
	CellCapacity  uint32        // Byte capacity of newly created cells (default: 100)
}

// ClientConfig holds all configuration options for a CellVault client.
type ClientConfig struct {
	Address              string        // Server address (default: "127.0.0.1:7878")
	DialTimeout          time.Duration // Connection timeout (default: 5s)
	ReadTimeout          time.Duration // Wait for one response line (default: 10s)
	KeepaliveInterval    time.Duration // Period between keepalive PINGs (default: 10s)
	ReconnectDelay       time.Duration // Pause between reconnect attempts (default: 2s)
	TCPKeepaliveIdle     time.Duration // TCP keepalive idle time (default: 10s)
	TCPKeepaliveInterval time.Duration // TCP keepalive probe interval (default: 5s)
}

// DefaultServerConfig returns a ServerConfig populated with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          DefaultHost,
		Port:          DefaultServerPort,
		VaultCapacity: DefaultVaultCapacity,
		CellCapacity:  DefaultCellCapacity,
		PingMinDelay:  DefaultPingMinDelay,
		PingMaxDelay:  DefaultPingMaxDelay,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}
}

// DefaultClientConfig returns a ClientConfig populated with default values.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Address:              net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultServerPort)),
		DialTimeout:          DefaultDialTimeout,
		ReadTimeout:          DefaultReadTimeout,
		KeepaliveInterval:    DefaultKeepaliveInterval,
		ReconnectDelay:       DefaultReconnectDelay,
		TCPKeepaliveIdle:     DefaultTCPKeepaliveIdle,
		TCPKeepaliveInterval: DefaultTCPKeepaliveInterval,
	}
}

// RegisterServerFlags defines the server flags on fs.
//
// Flags:
//
//	--host: Server host (default: "127.0.0.1")
//	--port: Server port (default: 7878)
//	--vault-capacity: Maximum number of cells (default: 10)
//	--cell-capacity: Capacity of new cells (default: 100)
//	--ping-min-delay: Minimum PING delay (default: 1s)
//	--ping-max-delay: Maximum PING delay (default: 5s)
//	--log-level: Log level (default: "info")
//	--log-format: Log format (default: "auto")
func RegisterServerFlags(fs *pflag.FlagSet) {
	d := DefaultServerConfig()
	fs.String(KeyHost, d.Host, "Server host")
	fs.Int(KeyPort, d.Port, "Server port")
	fs.Int(KeyVaultCapacity, d.VaultCapacity, "Maximum number of cells in the vault")
	fs.Uint32(KeyCellCapacity, d.CellCapacity, "Capacity of newly created cells")
	fs.Duration(KeyPingMinDelay, d.PingMinDelay, "Minimum artificial PING delay")
	fs.Duration(KeyPingMaxDelay, d.PingMaxDelay, "Maximum artificial PING delay")
	fs.String(KeyLogLevel, d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String(KeyLogFormat, d.LogFormat, "Log format (auto, text, json)")
}

// RegisterClientFlags defines the client flags on fs.
func RegisterClientFlags(fs *pflag.FlagSet) {
	d := DefaultClientConfig()
	fs.String(KeyAddress, d.Address, "Server address (host:port)")
	fs.Duration(KeyDialTimeout, d.DialTimeout, "Connection timeout")
	fs.Duration(KeyReadTimeout, d.ReadTimeout, "Response read timeout")
	fs.Duration(KeyKeepaliveInterval, d.KeepaliveInterval, "Interval between keepalive PINGs (0 disables)")
	fs.Duration(KeyReconnectDelay, d.ReconnectDelay, "Delay between reconnect attempts")
	fs.Duration(KeyTCPKeepaliveIdle, d.TCPKeepaliveIdle, "TCP keepalive idle time")
	fs.Duration(KeyTCPKeepaliveInterval, d.TCPKeepaliveInterval, "TCP keepalive probe interval")
}

// LoadServerConfig builds a ServerConfig from defaults, an optional config
// file, CELLVAULT_* environment variables and the flags in fs, in increasing
// order of precedence. fs may be nil and configFile may be empty.
// The result is validated before it is returned.
func LoadServerConfig(fs *pflag.FlagSet, configFile string) (*ServerConfig, error) {
	d := DefaultServerConfig()
	v, err := newViper(fs, configFile, map[string]any{
		KeyHost:          d.Host,
		KeyPort:          d.Port,
		KeyVaultCapacity: d.VaultCapacity,
		KeyCellCapacity:  d.CellCapacity,
		KeyPingMinDelay:  d.PingMinDelay,
		KeyPingMaxDelay:  d.PingMaxDelay,
		KeyLogLevel:      d.LogLevel,
		KeyLogFormat:     d.LogFormat,
	})
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Host:          v.GetString(KeyHost),
		Port:          v.GetInt(KeyPort),
		VaultCapacity: v.GetInt(KeyVaultCapacity),
		CellCapacity:  v.GetUint32(KeyCellCapacity),
		PingMinDelay:  v.GetDuration(KeyPingMinDelay),
		PingMaxDelay:  v.GetDuration(KeyPingMaxDelay),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:     strings.ToLower(v.GetString(KeyLogFormat)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig builds a ClientConfig the same way LoadServerConfig does.
func LoadClientConfig(fs *pflag.FlagSet, configFile string) (*ClientConfig, error) {
	d := DefaultClientConfig()
	v, err := newViper(fs, configFile, map[string]any{
		KeyAddress:              d.Address,
		KeyDialTimeout:          d.DialTimeout,
		KeyReadTimeout:          d.ReadTimeout,
		KeyKeepaliveInterval:    d.KeepaliveInterval,
		KeyReconnectDelay:       d.ReconnectDelay,
		KeyTCPKeepaliveIdle:     d.TCPKeepaliveIdle,
		KeyTCPKeepaliveInterval: d.TCPKeepaliveInterval,
	})
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		Address:              v.GetString(KeyAddress),
		DialTimeout:          v.GetDuration(KeyDialTimeout),
		ReadTimeout:          v.GetDuration(KeyReadTimeout),
		KeepaliveInterval:    v.GetDuration(KeyKeepaliveInterval),
		ReconnectDelay:       v.GetDuration(KeyReconnectDelay),
		TCPKeepaliveIdle:     v.GetDuration(KeyTCPKeepaliveIdle),
		TCPKeepaliveInterval: v.GetDuration(KeyTCPKeepaliveInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(fs *pflag.FlagSet, configFile string, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	return v, nil
}

// Address returns the "host:port" string the server binds to.
//
// Example:
//
//	cfg := &ServerConfig{Host: "127.0.0.1", Port: 7878}
//	addr := cfg.Address() // "127.0.0.1:7878"
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks if the ServerConfig contains valid values.
//
// Validation rules:
//   - Port must be between 1 and 65535
//   - VaultCapacity must be positive
//   - CellCapacity must be positive
//   - PING delays must be non-negative with min <= max
//   - LogLevel must be one of: debug, info, warn, error
//   - LogFormat must be one of: auto, text, json
//
// Returns:
//   - nil if configuration is valid
//   - Error describing the first validation failure found
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.VaultCapacity < 1 {
		return fmt.Errorf("vault capacity must be positive: %d", c.VaultCapacity)
	}

	if c.CellCapacity < 1 {
		return fmt.Errorf("cell capacity must be positive: %d", c.CellCapacity)
	}

	if c.PingMinDelay < 0 || c.PingMaxDelay < 0 {
		return fmt.Errorf("ping delays must be non-negative: %s..%s", c.PingMinDelay, c.PingMaxDelay)
	}

	if c.PingMinDelay > c.PingMaxDelay {
		return fmt.Errorf("ping min delay %s exceeds max delay %s", c.PingMinDelay, c.PingMaxDelay)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"auto": true,
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	return nil
}

// Validate checks if the ClientConfig contains valid values.
//
// Validation rules:
//   - Address must be in host:port form
//   - DialTimeout and ReadTimeout must be positive
//   - KeepaliveInterval must be non-negative (0 disables keepalive PINGs)
//   - ReconnectDelay must be positive
//   - TCP keepalive durations must be positive
func (c *ClientConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Address, err)
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive: %s", c.DialTimeout)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive: %s", c.ReadTimeout)
	}

	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("keepalive interval must be non-negative: %s", c.KeepaliveInterval)
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive: %s", c.ReconnectDelay)
	}

	if c.TCPKeepaliveIdle <= 0 || c.TCPKeepaliveInterval <= 0 {
		return fmt.Errorf("tcp keepalive durations must be positive: idle %s, interval %s",
			c.TCPKeepaliveIdle, c.TCPKeepaliveInterval)
	}

	return nil
}
