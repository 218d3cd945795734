package ratchet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"vauchi/go-core/internal/crypto"
)

const (
	// MaxSkip bounds cached skipped message keys per receiving chain.
	MaxSkip = 1000
	// MaxSkippedTotal bounds the skipped-key cache across all chains.
	MaxSkippedTotal = 2000

	rootInfo    = "Vauchi_Root"
	messageInfo = "msg"
	chainInfo   = "chain"
)

var (
	ErrUninitialized = errors.New("ratchet not initialized for sending")
	// ErrDecryptFailed is the single opaque decryption error: MAC failure,
	// replay, skip-bound overflow, and stale DH keys are indistinguishable.
	ErrDecryptFailed = errors.New("ratchet decryption failed")
)

// Header travels in plaintext alongside each ratchet ciphertext.
type Header struct {
	DHPublic        []byte `json:"dh_public"`
	DHGeneration    uint32 `json:"dh_generation"`
	MessageIndex    uint32 `json:"message_index"`
	PrevChainLength uint32 `json:"previous_chain_length"`
}

// Message is one ratchet-encrypted payload.
type Message struct {
	Header     Header `json:"header"`
	Ciphertext []byte `json:"ciphertext"`
}

// State is the pairwise channel state between the local device and one
// remote contact. All mutation happens through Encrypt/Decrypt; Decrypt
// leaves the state untouched on any failure.
type State struct {
	DHPriv       []byte `json:"dh_priv"`
	DHPub        []byte `json:"dh_pub"`
	PeerDHPub    []byte `json:"peer_dh_pub"`
	DHGeneration uint32 `json:"dh_generation"`

	RootKey        []byte `json:"root_key"`
	SendChainKey   []byte `json:"send_chain_key,omitempty"`
	SendIndex      uint32 `json:"send_index"`
	RecvChainKey   []byte `json:"recv_chain_key,omitempty"`
	RecvIndex      uint32 `json:"recv_index"`
	PrevSendLength uint32 `json:"prev_send_length"`

	// Skipped maps hex(dh_public):index to a cached message key; Order
	// tracks insertion for FIFO eviction.
	Skipped map[string][]byte `json:"skipped,omitempty"`
	Order   []string          `json:"skipped_order,omitempty"`

	IsInitiator bool `json:"is_initiator"`
}

// InitInitiator seeds the initiator side from the X3DH shared secret and
// the responder's initial DH public key. The first send performs the
// initial DH ratchet step lazily.
func InitInitiator(sharedSecret, peerDHPub []byte) *State {
	return &State{
		RootKey:     append([]byte(nil), sharedSecret...),
		PeerDHPub:   append([]byte(nil), peerDHPub...),
		Skipped:     map[string][]byte{},
		IsInitiator: true,
	}
}

// InitResponder seeds the responder side from the shared secret and the
// responder's own initial DH keypair (the one advertised to the initiator).
// The responder cannot send until it has received a first message.
func InitResponder(sharedSecret, dhPriv, dhPub []byte) *State {
	return &State{
		RootKey: append([]byte(nil), sharedSecret...),
		DHPriv:  append([]byte(nil), dhPriv...),
		DHPub:   append([]byte(nil), dhPub...),
		Skipped: map[string][]byte{},
	}
}

func kdfRoot(rootKey, dh []byte) (newRoot, chainKey []byte) {
	out, err := crypto.DeriveKey(dh, rootKey, []byte(rootInfo), 64)
	if err != nil {
		// 64 bytes is far below the HKDF output cap.
		panic(fmt.Sprintf("ratchet: root kdf: %v", err))
	}
	return out[:32], out[32:]
}

func messageKey(chainKey []byte) []byte {
	return crypto.KDF32(chainKey, messageInfo)
}

func nextChainKey(chainKey []byte) []byte {
	return crypto.KDF32(chainKey, chainInfo)
}

func skippedKeyID(dhPub []byte, index uint32) string {
	return hex.EncodeToString(dhPub) + ":" + fmt.Sprint(index)
}

func (s *State) headerAAD(h Header) []byte {
	b := make([]byte, 0, len(h.DHPublic)+12)
	b = append(b, h.DHPublic...)
	b = append(b,
		byte(h.DHGeneration>>24), byte(h.DHGeneration>>16), byte(h.DHGeneration>>8), byte(h.DHGeneration),
		byte(h.MessageIndex>>24), byte(h.MessageIndex>>16), byte(h.MessageIndex>>8), byte(h.MessageIndex),
		byte(h.PrevChainLength>>24), byte(h.PrevChainLength>>16), byte(h.PrevChainLength>>8), byte(h.PrevChainLength))
	return b
}

// Encrypt seals plaintext under the next sending-chain key. The first send
// after initialization or after a DH ratchet step generates a fresh DH
// keypair and advances the root.
func (s *State) Encrypt(plaintext []byte) (Message, error) {
	if s.SendChainKey == nil {
		if len(s.PeerDHPub) == 0 {
			return Message{}, ErrUninitialized
		}
		priv, pub, err := crypto.NewX25519KeyPair()
		if err != nil {
			return Message{}, err
		}
		dh, err := crypto.X25519SharedSecret(priv, s.PeerDHPub)
		if err != nil {
			return Message{}, err
		}
		s.RootKey, s.SendChainKey = kdfRoot(s.RootKey, dh)
		crypto.ZeroBytes(dh)
		s.DHPriv, s.DHPub = priv, pub
		s.DHGeneration++
		s.PrevSendLength = s.SendIndex
		s.SendIndex = 0
	}

	mk := messageKey(s.SendChainKey)
	header := Header{
		DHPublic:        append([]byte(nil), s.DHPub...),
		DHGeneration:    s.DHGeneration,
		MessageIndex:    s.SendIndex,
		PrevChainLength: s.PrevSendLength,
	}
	sealed, err := crypto.EncryptWithAAD(mk, plaintext, s.headerAAD(header))
	crypto.ZeroBytes(mk)
	if err != nil {
		return Message{}, err
	}

	s.SendChainKey = nextChainKey(s.SendChainKey)
	s.SendIndex++
	return Message{Header: header, Ciphertext: sealed}, nil
}

// Decrypt opens a ratchet message, handling skipped keys and DH ratchet
// steps. On any failure the receiver state is left exactly as it was.
func (s *State) Decrypt(msg Message) ([]byte, error) {
	work := s.clone()
	plaintext, err := work.decrypt(msg)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	*s = *work
	return plaintext, nil
}

func (s *State) decrypt(msg Message) ([]byte, error) {
	h := msg.Header
	if len(h.DHPublic) == 0 {
		return nil, ErrDecryptFailed
	}

	// A previously skipped message decrypts with its cached key, once.
	if mk, ok := s.Skipped[skippedKeyID(h.DHPublic, h.MessageIndex)]; ok {
		plaintext, err := crypto.DecryptWithAAD(mk, msg.Ciphertext, s.headerAAD(h))
		if err != nil {
			return nil, err
		}
		s.dropSkipped(skippedKeyID(h.DHPublic, h.MessageIndex))
		return plaintext, nil
	}

	if !bytes.Equal(h.DHPublic, s.PeerDHPub) {
		// DH ratchet step: cache the tail of the outgoing receive chain,
		// then derive the new receiving chain. The sending chain is
		// re-derived lazily with a fresh keypair on the next Encrypt.
		if s.RecvChainKey != nil {
			if err := s.skipTo(h.PrevChainLength); err != nil {
				return nil, err
			}
		}
		if len(s.DHPriv) == 0 {
			return nil, ErrDecryptFailed
		}
		dh, err := crypto.X25519SharedSecret(s.DHPriv, h.DHPublic)
		if err != nil {
			return nil, err
		}
		s.RootKey, s.RecvChainKey = kdfRoot(s.RootKey, dh)
		crypto.ZeroBytes(dh)
		s.PeerDHPub = append([]byte(nil), h.DHPublic...)
		s.RecvIndex = 0
		s.SendChainKey = nil
	}

	if h.MessageIndex < s.RecvIndex {
		// Replayed or already-consumed index with no cached key.
		return nil, ErrDecryptFailed
	}
	if err := s.skipTo(h.MessageIndex); err != nil {
		return nil, err
	}

	mk := messageKey(s.RecvChainKey)
	plaintext, err := crypto.DecryptWithAAD(mk, msg.Ciphertext, s.headerAAD(h))
	crypto.ZeroBytes(mk)
	if err != nil {
		return nil, err
	}
	s.RecvChainKey = nextChainKey(s.RecvChainKey)
	s.RecvIndex = h.MessageIndex + 1
	return plaintext, nil
}

// skipTo derives and caches message keys for indices RecvIndex..target-1 of
// the current receiving chain.
func (s *State) skipTo(target uint32) error {
	if s.RecvChainKey == nil {
		return ErrDecryptFailed
	}
	if target > s.RecvIndex && target-s.RecvIndex > MaxSkip {
		return ErrDecryptFailed
	}
	for s.RecvIndex < target {
		id := skippedKeyID(s.PeerDHPub, s.RecvIndex)
		s.Skipped[id] = messageKey(s.RecvChainKey)
		s.Order = append(s.Order, id)
		s.RecvChainKey = nextChainKey(s.RecvChainKey)
		s.RecvIndex++
	}
	for len(s.Skipped) > MaxSkippedTotal && len(s.Order) > 0 {
		oldest := s.Order[0]
		s.Order = s.Order[1:]
		delete(s.Skipped, oldest)
	}
	return nil
}

func (s *State) dropSkipped(id string) {
	delete(s.Skipped, id)
	for i, v := range s.Order {
		if v == id {
			s.Order = append(s.Order[:i], s.Order[i+1:]...)
			break
		}
	}
}

func (s *State) clone() *State {
	out := *s
	out.DHPriv = append([]byte(nil), s.DHPriv...)
	out.DHPub = append([]byte(nil), s.DHPub...)
	out.PeerDHPub = append([]byte(nil), s.PeerDHPub...)
	out.RootKey = append([]byte(nil), s.RootKey...)
	out.SendChainKey = append([]byte(nil), s.SendChainKey...)
	out.RecvChainKey = append([]byte(nil), s.RecvChainKey...)
	if s.SendChainKey == nil {
		out.SendChainKey = nil
	}
	if s.RecvChainKey == nil {
		out.RecvChainKey = nil
	}
	out.Skipped = make(map[string][]byte, len(s.Skipped))
	for k, v := range s.Skipped {
		out.Skipped[k] = append([]byte(nil), v...)
	}
	out.Order = append([]string(nil), s.Order...)
	return &out
}
