package network

import (
	"sync"
)

// MockTransport is the in-memory Transport used by tests. Outbound
// envelopes accumulate and are read back through SentEnvelopes; tests feed
// inbound traffic through Inject.
type MockTransport struct {
	mu        sync.Mutex
	state     ConnectionState
	sent      []*Envelope
	inbox     []*Envelope
	FailSend  bool
	FailConnect bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{state: ConnectionState{Kind: StateDisconnected}}
}

func (m *MockTransport) Connect(cfg *TransportConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailConnect {
		return ErrConnectionFailed
	}
	m.state = ConnectionState{Kind: StateConnected}
	return nil
}

func (m *MockTransport) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ConnectionState{Kind: StateDisconnected}
	return nil
}

func (m *MockTransport) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *MockTransport) Send(env *Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateConnected {
		return ErrNotConnected
	}
	if m.FailSend {
		return ErrSendFailed
	}
	// Round-trip the frame so the mock honors the same size limits as the
	// real socket.
	frame, err := EncodeFrame(env)
	if err != nil {
		return err
	}
	decoded, err := DecodeFrame(frame)
	if err != nil {
		return err
	}
	m.sent = append(m.sent, decoded)
	return nil
}

func (m *MockTransport) Receive() (*Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != StateConnected {
		return nil, ErrNotConnected
	}
	if len(m.inbox) == 0 {
		return nil, nil
	}
	env := m.inbox[0]
	m.inbox = m.inbox[1:]
	return env, nil
}

func (m *MockTransport) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inbox) > 0
}

// Inject queues an inbound envelope for Receive.
func (m *MockTransport) Inject(env *Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = append(m.inbox, env)
}

// SentEnvelopes snapshots everything sent so far.
func (m *MockTransport) SentEnvelopes() []*Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Envelope(nil), m.sent...)
}
