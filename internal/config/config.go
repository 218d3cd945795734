package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vauchi/go-core/internal/network"
)

var ErrStoragePathRequired = errors.New("config: storage_path is required")

// RelaySection tunes the relay client connection.
type RelaySection struct {
	ServerURL            string              `yaml:"server_url"`
	ConnectTimeoutMs     int                 `yaml:"connect_timeout_ms"`
	IOTimeoutMs          int                 `yaml:"io_timeout_ms"`
	MaxReconnectAttempts int                 `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelayMs int                 `yaml:"reconnect_base_delay_ms"`
	MaxPending           int                 `yaml:"max_pending"`
	AckTimeoutMs         int                 `yaml:"ack_timeout_ms"`
	MaxRetries           int                 `yaml:"max_retries"`
	Proxy                network.ProxyConfig `yaml:"proxy"`
}

// SyncSection tunes the background sync loop.
type SyncSection struct {
	AutoSync          bool `yaml:"auto_sync"`
	SyncIntervalMs    int  `yaml:"sync_interval_ms"`
	MaxPendingUpdates int  `yaml:"max_pending_updates"`
}

// Config is the client configuration surface.
type Config struct {
	StoragePath string       `yaml:"storage_path"`
	Relay       RelaySection `yaml:"relay"`
	Sync        SyncSection  `yaml:"sync"`
	AutoSave    bool         `yaml:"auto_save"`
}

// Default returns the documented defaults. StoragePath stays empty and
// must be provided by the caller or the config file.
func Default() Config {
	return Config{
		Relay: RelaySection{
			ConnectTimeoutMs:     10_000,
			IOTimeoutMs:          30_000,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelayMs: 1_000,
			MaxPending:           100,
			AckTimeoutMs:         30_000,
			MaxRetries:           5,
			Proxy:                network.ProxyConfig{Kind: network.ProxyNone},
		},
		Sync: SyncSection{
			AutoSync:          true,
			SyncIntervalMs:    60_000,
			MaxPendingUpdates: 50,
		},
		AutoSave: true,
	}
}

// ApplyTorPreset switches the relay section to Tor timeouts and the local
// SOCKS5 daemon.
func (c *Config) ApplyTorPreset() {
	c.Relay.ConnectTimeoutMs = 60_000
	c.Relay.IOTimeoutMs = 120_000
	c.Relay.Proxy = network.TorDefaultProxy()
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required options.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoragePath) == "" {
		return ErrStoragePathRequired
	}
	return nil
}

// TransportConfig maps the relay section onto the transport layer.
func (c *Config) TransportConfig() network.TransportConfig {
	return network.TransportConfig{
		ServerURL:            c.Relay.ServerURL,
		ConnectTimeoutMs:     c.Relay.ConnectTimeoutMs,
		IOTimeoutMs:          c.Relay.IOTimeoutMs,
		MaxReconnectAttempts: c.Relay.MaxReconnectAttempts,
		ReconnectBaseDelayMs: c.Relay.ReconnectBaseDelayMs,
		Proxy:                c.Relay.Proxy,
	}
}

// RelayClientConfig maps the relay section onto the client layer.
func (c *Config) RelayClientConfig() network.RelayClientConfig {
	return network.RelayClientConfig{
		Transport:          c.TransportConfig(),
		MaxPendingMessages: c.Relay.MaxPending,
		AckTimeoutMs:       c.Relay.AckTimeoutMs,
		MaxRetries:         c.Relay.MaxRetries,
	}
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// ApplyEnv overlays VAUCHI_* environment variables onto the config.
func (c *Config) ApplyEnv() {
	if v := envString("VAUCHI_STORAGE_PATH"); v != "" {
		c.StoragePath = v
	}
	if v := envString("VAUCHI_RELAY_URL"); v != "" {
		c.Relay.ServerURL = v
	}
	c.Relay.ConnectTimeoutMs = envIntWithFallback("VAUCHI_RELAY_CONNECT_TIMEOUT_MS", c.Relay.ConnectTimeoutMs)
	c.Relay.IOTimeoutMs = envIntWithFallback("VAUCHI_RELAY_IO_TIMEOUT_MS", c.Relay.IOTimeoutMs)
	c.Sync.AutoSync = envBoolWithFallback("VAUCHI_AUTO_SYNC", c.Sync.AutoSync)
	c.Sync.MaxPendingUpdates = envIntWithFallback("VAUCHI_MAX_PENDING_UPDATES", c.Sync.MaxPendingUpdates)
	c.AutoSave = envBoolWithFallback("VAUCHI_AUTO_SAVE", c.AutoSave)
	if envBoolWithFallback("VAUCHI_USE_TOR", false) {
		c.ApplyTorPreset()
	}
}
