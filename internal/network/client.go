package network

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"vauchi/go-core/internal/ratchet"
)

var (
	ErrTooManyInFlight = errors.New("too many unacknowledged messages")
	ErrEncryption      = errors.New("outbound encryption failed")
)

// RelayClientConfig tunes the relay client on top of its transport.
type RelayClientConfig struct {
	Transport          TransportConfig
	MaxPendingMessages int
	AckTimeoutMs       int
	MaxRetries         int
}

// DefaultRelayClientConfig mirrors the transport defaults.
func DefaultRelayClientConfig() RelayClientConfig {
	return RelayClientConfig{
		Transport:          DefaultTransportConfig(),
		MaxPendingMessages: 100,
		AckTimeoutMs:       30_000,
		MaxRetries:         5,
	}
}

type inFlightMessage struct {
	updateID   string
	sentAt     time.Time
	retryCount int
}

// RelayClient sends ratchet-encrypted updates through the relay and tracks
// acknowledgments per message ID.
type RelayClient struct {
	mu        sync.Mutex
	transport Transport
	cfg       RelayClientConfig
	clientID  string
	deviceID  string
	inFlight  map[string]*inFlightMessage
	now       func() time.Time
}

// NewRelayClient wraps a transport. clientID is the local identity's
// contact ID; deviceID names the sending device in the handshake.
func NewRelayClient(transport Transport, cfg RelayClientConfig, clientID, deviceID string) *RelayClient {
	return &RelayClient{
		transport: transport,
		cfg:       cfg,
		clientID:  clientID,
		deviceID:  deviceID,
		inFlight:  make(map[string]*inFlightMessage),
		now:       time.Now,
	}
}

// Connect dials the relay and sends the handshake binding this connection
// to the client ID.
func (c *RelayClient) Connect() error {
	if err := c.transport.Connect(&c.cfg.Transport); err != nil {
		return err
	}
	handshake := NewEnvelope(Payload{
		Kind:      PayloadHandshake,
		Handshake: &HandshakePayload{ClientID: c.clientID, DeviceID: c.deviceID},
	})
	return c.transport.Send(handshake)
}

// ConnectWithRetry dials with exponential backoff: attempt k waits
// min(base * 2^k, 60s), up to the configured attempt cap.
func (c *RelayClient) ConnectWithRetry() error {
	var err error
	for attempt := 0; attempt <= c.cfg.Transport.MaxReconnectAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(ReconnectDelay(c.cfg.Transport.ReconnectBaseDelayMs, attempt-1))
		}
		if err = c.Connect(); err == nil {
			return nil
		}
	}
	return err
}

// ReconnectDelay computes the backoff for reconnect attempt k.
func ReconnectDelay(baseDelayMs, attempt int) time.Duration {
	const capDelay = 60 * time.Second
	delay := time.Duration(baseDelayMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= capDelay {
			return capDelay
		}
	}
	if delay > capDelay {
		return capDelay
	}
	return delay
}

// Disconnect closes the transport.
func (c *RelayClient) Disconnect() error {
	return c.transport.Disconnect()
}

// IsConnected reports the transport state.
func (c *RelayClient) IsConnected() bool {
	return c.transport.State().Kind == StateConnected
}

// SendUpdate ratchet-encrypts payload for the recipient and ships it,
// returning the wire message ID used for ack tracking.
func (c *RelayClient) SendUpdate(recipientID string, rs *ratchet.State, payload []byte, updateID string) (string, error) {
	msg, err := rs.Encrypt(payload)
	if err != nil {
		return "", ErrEncryption
	}
	ciphertext, err := json.Marshal(msg)
	if err != nil {
		return "", ErrSerialization
	}
	return c.SendRaw(recipientID, ciphertext, updateID)
}

// SendRaw ships an already-encrypted blob, enforcing in-flight
// back-pressure.
func (c *RelayClient) SendRaw(recipientID string, ciphertext []byte, updateID string) (string, error) {
	c.mu.Lock()
	if len(c.inFlight) >= c.cfg.MaxPendingMessages {
		c.mu.Unlock()
		return "", ErrTooManyInFlight
	}
	c.mu.Unlock()

	env := NewEnvelope(Payload{
		Kind: PayloadEncryptedUpdate,
		EncryptedUpdate: &EncryptedUpdatePayload{
			RecipientID: recipientID,
			SenderID:    c.clientID,
			Ciphertext:  ciphertext,
		},
	})
	if err := c.transport.Send(env); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.inFlight[env.MessageID] = &inFlightMessage{updateID: updateID, sentAt: c.now()}
	c.mu.Unlock()
	return env.MessageID, nil
}

// HandleAck consumes an acknowledgment payload. It returns the update ID
// the ack settles, or "" when the status is not terminal or the message is
// unknown.
func (c *RelayClient) HandleAck(ack *AckPayload) string {
	if ack == nil {
		return ""
	}
	switch ack.Status {
	case AckStored, AckDelivered, AckReceivedByRecipient:
	default:
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.inFlight[ack.MessageID]
	if !ok {
		return ""
	}
	delete(c.inFlight, ack.MessageID)
	return tracked.updateID
}

// CheckTimeouts returns the update IDs of in-flight messages whose ack has
// been outstanding longer than the ack timeout, dropping them from
// tracking so the retry layer can take over.
func (c *RelayClient) CheckTimeouts() []string {
	deadline := time.Duration(c.cfg.AckTimeoutMs) * time.Millisecond
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var timedOut []string
	for id, msg := range c.inFlight {
		if now.Sub(msg.sentAt) > deadline {
			timedOut = append(timedOut, msg.updateID)
			delete(c.inFlight, id)
		}
	}
	return timedOut
}

// InFlightCount reports the unacknowledged message count.
func (c *RelayClient) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

// Poll drains one inbound envelope. Acks are settled internally and
// surfaced as acked update IDs; encrypted updates are returned for
// decryption by the caller.
func (c *RelayClient) Poll() (update *EncryptedUpdatePayload, ackedUpdateID string, err error) {
	env, err := c.transport.Receive()
	if err != nil || env == nil {
		return nil, "", err
	}
	switch env.Payload.Kind {
	case PayloadAcknowledgment:
		return nil, c.HandleAck(env.Payload.Acknowledgment), nil
	case PayloadEncryptedUpdate:
		return env.Payload.EncryptedUpdate, "", nil
	default:
		return nil, "", nil
	}
}
