package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	EnvelopeVersion = 1

	// MaxEnvelopeSize caps one framed message at 1 MiB.
	MaxEnvelopeSize = 1 << 20
)

var (
	ErrInvalidMessage = errors.New("invalid wire message")
	ErrSerialization  = errors.New("message serialization failed")
)

// PayloadKind discriminates envelope payload variants.
type PayloadKind string

const (
	PayloadHandshake       PayloadKind = "handshake"
	PayloadEncryptedUpdate PayloadKind = "encrypted_update"
	PayloadAcknowledgment  PayloadKind = "acknowledgment"
	PayloadDeviceSync      PayloadKind = "device_sync"
	PayloadDeviceSyncAck   PayloadKind = "device_sync_ack"
	PayloadUnknown         PayloadKind = "unknown"
)

// AckStatus reports how far a message travelled.
type AckStatus string

const (
	AckStored              AckStatus = "stored"
	AckDelivered           AckStatus = "delivered"
	AckReceivedByRecipient AckStatus = "received_by_recipient"
	AckFailed              AckStatus = "failed"
)

// HandshakePayload binds a connection to a client identity.
type HandshakePayload struct {
	ClientID string `json:"client_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// EncryptedUpdatePayload carries opaque ratchet ciphertext through the relay.
type EncryptedUpdatePayload struct {
	RecipientID string `json:"recipient_id"`
	SenderID    string `json:"sender_id"`
	Ciphertext  []byte `json:"ciphertext"`
}

// AckPayload acknowledges a prior message by ID.
type AckPayload struct {
	MessageID string    `json:"message_id"`
	Status    AckStatus `json:"status"`
}

// DeviceSyncPayload clones state between one identity's devices.
type DeviceSyncPayload struct {
	SourceDeviceID string `json:"source_device_id"`
	TargetDeviceID string `json:"target_device_id"`
	SyncVersion    uint64 `json:"sync_version"`
	Ciphertext     []byte `json:"ciphertext"`
}

// DeviceSyncAckPayload confirms a device sync message.
type DeviceSyncAckPayload struct {
	SourceDeviceID string `json:"source_device_id"`
	SyncVersion    uint64 `json:"sync_version"`
}

// Payload is the tagged union carried by an envelope. Unrecognized kinds
// deserialize to PayloadUnknown for forward compatibility.
type Payload struct {
	Kind            PayloadKind             `json:"kind"`
	Handshake       *HandshakePayload       `json:"handshake,omitempty"`
	EncryptedUpdate *EncryptedUpdatePayload `json:"encrypted_update,omitempty"`
	Acknowledgment  *AckPayload             `json:"acknowledgment,omitempty"`
	DeviceSync      *DeviceSyncPayload      `json:"device_sync,omitempty"`
	DeviceSyncAck   *DeviceSyncAckPayload   `json:"device_sync_ack,omitempty"`
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	type alias Payload
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	switch decoded.Kind {
	case PayloadHandshake, PayloadEncryptedUpdate, PayloadAcknowledgment, PayloadDeviceSync, PayloadDeviceSyncAck:
	default:
		decoded = alias{Kind: PayloadUnknown}
	}
	*p = Payload(decoded)
	return nil
}

// Envelope is one framed wire message.
type Envelope struct {
	Version   int     `json:"version"`
	MessageID string  `json:"message_id"`
	Timestamp int64   `json:"timestamp"`
	Payload   Payload `json:"payload"`
}

// NewEnvelope stamps a payload with a fresh message ID and timestamp.
func NewEnvelope(payload Payload) *Envelope {
	return &Envelope{
		Version:   EnvelopeVersion,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UTC().Unix(),
		Payload:   payload,
	}
}

// EncodeFrame renders the envelope as a 4-byte big-endian length prefix
// followed by UTF-8 JSON.
func EncodeFrame(env *Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, ErrSerialization
	}
	if len(body) > MaxEnvelopeSize {
		return nil, ErrInvalidMessage
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// DecodeFrame parses one length-prefixed envelope from a byte slice.
func DecodeFrame(frame []byte) (*Envelope, error) {
	if len(frame) < 4 {
		return nil, ErrInvalidMessage
	}
	size := binary.BigEndian.Uint32(frame)
	if size > MaxEnvelopeSize || int(size) != len(frame)-4 {
		return nil, ErrInvalidMessage
	}
	return decodeEnvelopeBody(frame[4:])
}

// ReadFrame reads one framed envelope from a stream.
func ReadFrame(r io.Reader) (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxEnvelopeSize {
		return nil, ErrInvalidMessage
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeEnvelopeBody(body)
}

func decodeEnvelopeBody(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrInvalidMessage
	}
	if env.Version != EnvelopeVersion {
		return nil, ErrInvalidMessage
	}
	return &env, nil
}

// legacySimpleMessage is the retired mobile dialect: a flat JSON object
// instead of the framed envelope. It is accepted on decode only; the full
// envelope of this package is the one supported wire schema.
type legacySimpleMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeLegacySimple maps a legacy simple-format message into the full
// envelope schema. Encoding the legacy dialect is intentionally absent.
func DecodeLegacySimple(data []byte) (*Envelope, error) {
	var msg legacySimpleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrInvalidMessage
	}
	if msg.Type != "encrypted_update" || msg.ID == "" {
		return nil, ErrInvalidMessage
	}
	return &Envelope{
		Version:   EnvelopeVersion,
		MessageID: msg.ID,
		Timestamp: msg.Timestamp,
		Payload: Payload{
			Kind: PayloadEncryptedUpdate,
			EncryptedUpdate: &EncryptedUpdatePayload{
				RecipientID: msg.To,
				SenderID:    msg.From,
				Ciphertext:  msg.Payload,
			},
		},
	}, nil
}
