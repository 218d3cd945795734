package network

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	env := NewEnvelope(Payload{
		Kind: PayloadEncryptedUpdate,
		EncryptedUpdate: &EncryptedUpdatePayload{
			RecipientID: "bob",
			SenderID:    "alice",
			Ciphertext:  []byte{1, 2, 3},
		},
	})
	frame, err := EncodeFrame(env)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.MessageID != env.MessageID || decoded.Payload.Kind != PayloadEncryptedUpdate {
		t.Fatal("frame round trip mismatch")
	}
	if decoded.Payload.EncryptedUpdate.RecipientID != "bob" {
		t.Fatal("payload mismatch")
	}
}

func TestReadFrameFromStream(t *testing.T) {
	env := NewEnvelope(Payload{Kind: PayloadHandshake, Handshake: &HandshakePayload{ClientID: "alice"}})
	frame, _ := EncodeFrame(env)
	decoded, err := ReadFrame(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if decoded.Payload.Handshake.ClientID != "alice" {
		t.Fatal("stream round trip mismatch")
	}
}

func TestFrameSizeLimit(t *testing.T) {
	env := NewEnvelope(Payload{
		Kind: PayloadEncryptedUpdate,
		EncryptedUpdate: &EncryptedUpdatePayload{
			RecipientID: "bob",
			SenderID:    "alice",
			Ciphertext:  bytes.Repeat([]byte{0xaa}, MaxEnvelopeSize),
		},
	})
	if _, err := EncodeFrame(env); err != ErrInvalidMessage {
		t.Fatalf("oversized envelope must be rejected, got %v", err)
	}
}

func TestDecodeFrameRejectsBadPrefix(t *testing.T) {
	if _, err := DecodeFrame([]byte{0, 0}); err != ErrInvalidMessage {
		t.Fatalf("short frame must fail, got %v", err)
	}
	frame := []byte{0, 0, 0, 10, '{', '}'}
	if _, err := DecodeFrame(frame); err != ErrInvalidMessage {
		t.Fatalf("length mismatch must fail, got %v", err)
	}
}

func TestUnknownPayloadKindForwardCompatible(t *testing.T) {
	raw := []byte(`{"version":1,"message_id":"m1","timestamp":1,"payload":{"kind":"hologram","hologram":{"x":1}}}`)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unknown variant must still deserialize: %v", err)
	}
	if env.Payload.Kind != PayloadUnknown {
		t.Fatalf("expected unknown kind, got %s", env.Payload.Kind)
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	body := []byte(`{"version":9,"message_id":"m1","timestamp":1,"payload":{"kind":"handshake"}}`)
	frame := make([]byte, 4+len(body))
	frame[3] = byte(len(body))
	copy(frame[4:], body)
	if _, err := DecodeFrame(frame); err != ErrInvalidMessage {
		t.Fatalf("wrong version must fail, got %v", err)
	}
}

func TestDecodeLegacySimple(t *testing.T) {
	raw := []byte(`{"type":"encrypted_update","id":"legacy-1","from":"alice","to":"bob","payload":"AQID","timestamp":42}`)
	env, err := DecodeLegacySimple(raw)
	if err != nil {
		t.Fatalf("legacy decode failed: %v", err)
	}
	if env.Payload.Kind != PayloadEncryptedUpdate {
		t.Fatalf("expected encrypted_update, got %s", env.Payload.Kind)
	}
	if env.Payload.EncryptedUpdate.SenderID != "alice" || env.Payload.EncryptedUpdate.RecipientID != "bob" {
		t.Fatal("legacy routing fields mismatch")
	}
	if _, err := DecodeLegacySimple([]byte(`{"type":"presence"}`)); err != ErrInvalidMessage {
		t.Fatalf("non-update legacy message must be rejected, got %v", err)
	}
}
