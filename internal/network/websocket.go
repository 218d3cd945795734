package network

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// WebSocketTransport speaks the framed envelope protocol over a WebSocket
// connection, optionally through a SOCKS5 (Tor) or HTTP CONNECT proxy.
type WebSocketTransport struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	state ConnectionState
	cfg   TransportConfig

	inbox    chan *Envelope
	readErr  error
	readDone chan struct{}
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{state: ConnectionState{Kind: StateDisconnected}}
}

func (t *WebSocketTransport) Connect(cfg *TransportConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	t.cfg = *cfg
	t.state = ConnectionState{Kind: StateConnecting}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.connectTimeout(),
	}
	switch cfg.Proxy.Kind {
	case ProxySocks5:
		var auth *proxy.Auth
		if cfg.Proxy.Username != "" {
			auth = &proxy.Auth{User: cfg.Proxy.Username, Password: cfg.Proxy.Password}
		}
		socks, err := proxy.SOCKS5("tcp", net.JoinHostPort(cfg.Proxy.Host, fmt.Sprint(cfg.Proxy.Port)), auth, proxy.Direct)
		if err != nil {
			t.state = ConnectionState{Kind: StateDisconnected}
			return ErrConnectionFailed
		}
		dialer.NetDial = socks.Dial
	case ProxyHTTPConnect:
		proxyURL := &url.URL{Scheme: "http", Host: net.JoinHostPort(cfg.Proxy.Host, fmt.Sprint(cfg.Proxy.Port))}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.Dial(cfg.ServerURL, nil)
	if err != nil {
		t.state = ConnectionState{Kind: StateDisconnected}
		return ErrConnectionFailed
	}
	conn.SetReadLimit(MaxEnvelopeSize + 4)
	t.conn = conn
	t.state = ConnectionState{Kind: StateConnected}
	t.inbox = make(chan *Envelope, 64)
	t.readDone = make(chan struct{})
	go t.readLoop(conn, t.inbox, t.readDone)
	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, inbox chan *Envelope, done chan struct{}) {
	defer close(done)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.readErr = ErrConnectionFailed
			t.mu.Unlock()
			close(inbox)
			return
		}
		env, err := DecodeFrame(frame)
		if err != nil {
			// Skip malformed frames rather than killing the connection.
			continue
		}
		inbox <- env
	}
}

func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.state = ConnectionState{Kind: StateDisconnected}
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (t *WebSocketTransport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WebSocketTransport) Send(env *Envelope) error {
	t.mu.Lock()
	conn := t.conn
	cfg := t.cfg
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := EncodeFrame(env)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(cfg.ioTimeout()))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return ErrSendFailed
	}
	return nil
}

func (t *WebSocketTransport) Receive() (*Envelope, error) {
	t.mu.Lock()
	inbox := t.inbox
	cfg := t.cfg
	readErr := t.readErr
	t.mu.Unlock()
	if inbox == nil {
		return nil, ErrNotConnected
	}
	select {
	case env, ok := <-inbox:
		if !ok {
			if readErr != nil {
				return nil, readErr
			}
			return nil, ErrNotConnected
		}
		return env, nil
	case <-time.After(cfg.ioTimeout()):
		return nil, nil
	}
}

func (t *WebSocketTransport) HasPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inbox != nil && len(t.inbox) > 0
}
