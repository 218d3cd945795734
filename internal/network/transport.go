package network

import (
	"errors"
	"time"
)

var (
	ErrConnectionFailed = errors.New("connection to relay failed")
	ErrNotConnected     = errors.New("transport is not connected")
	ErrSendFailed       = errors.New("send failed")
)

// ConnectionState describes the transport lifecycle.
type ConnectionState struct {
	Kind    ConnectionKind
	Attempt int
}

type ConnectionKind string

const (
	StateDisconnected ConnectionKind = "disconnected"
	StateConnecting   ConnectionKind = "connecting"
	StateConnected    ConnectionKind = "connected"
	StateReconnecting ConnectionKind = "reconnecting"
)

// ProxyKind selects the outbound proxy mode.
type ProxyKind string

const (
	ProxyNone        ProxyKind = "none"
	ProxySocks5      ProxyKind = "socks5"
	ProxyHTTPConnect ProxyKind = "http_connect"
)

// ProxyConfig routes the transport through SOCKS5 (Tor) or HTTP CONNECT.
type ProxyConfig struct {
	Kind     ProxyKind `yaml:"kind"`
	Host     string    `yaml:"host,omitempty"`
	Port     int       `yaml:"port,omitempty"`
	Username string    `yaml:"username,omitempty"`
	Password string    `yaml:"password,omitempty"`
}

// TorDefaultProxy is the local Tor daemon SOCKS endpoint.
func TorDefaultProxy() ProxyConfig {
	return ProxyConfig{Kind: ProxySocks5, Host: "127.0.0.1", Port: 9050}
}

// TransportConfig tunes one relay connection.
type TransportConfig struct {
	ServerURL            string      `yaml:"server_url"`
	ConnectTimeoutMs     int         `yaml:"connect_timeout_ms"`
	IOTimeoutMs          int         `yaml:"io_timeout_ms"`
	MaxReconnectAttempts int         `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelayMs int         `yaml:"reconnect_base_delay_ms"`
	Proxy                ProxyConfig `yaml:"proxy"`
}

// DefaultTransportConfig returns the standard clearnet timeouts.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeoutMs:     10_000,
		IOTimeoutMs:          30_000,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelayMs: 1_000,
		Proxy:                ProxyConfig{Kind: ProxyNone},
	}
}

// TorTransportConfig returns a config preset for relaying over Tor, with
// the slower circuit timeouts that implies.
func TorTransportConfig(serverURL string) TransportConfig {
	return TransportConfig{
		ServerURL:            serverURL,
		ConnectTimeoutMs:     60_000,
		IOTimeoutMs:          120_000,
		MaxReconnectAttempts: 3,
		ReconnectBaseDelayMs: 5_000,
		Proxy:                TorDefaultProxy(),
	}
}

func (c TransportConfig) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

func (c TransportConfig) ioTimeout() time.Duration {
	return time.Duration(c.IOTimeoutMs) * time.Millisecond
}

// Transport abstracts the socket between the core and the relay. The
// surface is synchronous; implementations may run async machinery inside.
type Transport interface {
	Connect(cfg *TransportConfig) error
	Disconnect() error
	State() ConnectionState
	Send(env *Envelope) error
	// Receive returns the next inbound envelope, or nil without error when
	// none is available before the I/O timeout.
	Receive() (*Envelope, error)
	HasPending() bool
}
