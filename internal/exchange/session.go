package exchange

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/internal/identity"
	"vauchi/go-core/internal/ratchet"
	"vauchi/go-core/pkg/models"
)

const (
	x3dhInfo = "Vauchi_X3DH_v1"

	// Sessions stay valid for the QR lifetime plus a grace window.
	sessionGrace = 30 * time.Second
)

var (
	ErrDuplicateContact = errors.New("contact already exists for this key")
	ErrSessionState     = errors.New("operation not valid in current session state")
	ErrSessionExpired   = errors.New("pairing session deadline passed")
	ErrKeyAgreement     = errors.New("key agreement failed")
)

// SessionState tracks the pairing state machine.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateAwaitingScan      SessionState = "awaiting_scan"
	StateAwaitingProximity SessionState = "awaiting_proximity"
	StateAwaitingResponse  SessionState = "awaiting_response"
	StateComplete          SessionState = "complete"
	StateFailed            SessionState = "failed"
)

// DuplicateAction resolves a pairing against an already-known key.
type DuplicateAction int

const (
	DuplicateUpdate DuplicateAction = iota
	DuplicateKeep
	DuplicateCancel
)

// KeyAgreementMessage is the pairing wire format: the ephemeral public key
// travels in plaintext so the responder can derive SK; the identity payload
// is sealed under SK and opaque to the relay.
type KeyAgreementMessage struct {
	EphemeralPublicKey []byte `json:"ephemeral_pub"`
	Ciphertext         []byte `json:"ciphertext"`
}

type identityPayload struct {
	SigningPublicKey []byte `json:"signing_public_key"`
	DisplayName      string `json:"display_name"`
}

// PairResult is the outcome of a completed pairing.
type PairResult struct {
	Contact models.Contact
	Ratchet *ratchet.State
}

// Session drives one pairing exchange, either side.
type Session struct {
	state    SessionState
	identity *identity.Identity
	verifier ProximityVerifier

	// hasContact reports whether a contact id is already known, for
	// duplicate detection. Nil means no duplicates are possible.
	hasContact func(contactID string) bool

	peerQR       *QR
	deadline     time.Time
	failReason   error
	sharedSecret []byte

	pendingResult *PairResult
	pendingReply  *KeyAgreementMessage
}

// NewSession creates an idle pairing session for the local identity.
func NewSession(id *identity.Identity, verifier ProximityVerifier, hasContact func(string) bool) *Session {
	return &Session{
		state:      StateIdle,
		identity:   id,
		verifier:   verifier,
		hasContact: hasContact,
	}
}

// State returns the current machine state.
func (s *Session) State() SessionState { return s.state }

// FailReason returns the error that moved the session to Failed.
func (s *Session) FailReason() error { return s.failReason }

func (s *Session) fail(reason error) error {
	s.state = StateFailed
	s.failReason = reason
	crypto.ZeroBytes(s.sharedSecret)
	s.sharedSecret = nil
	return reason
}

// Begin arms the session for scanning.
func (s *Session) Begin() error {
	if s.state != StateIdle {
		return ErrSessionState
	}
	s.state = StateAwaitingScan
	return nil
}

// ProcessScannedQR validates a scanned payload and moves to the proximity
// check. The session deadline is the QR expiry plus a grace window.
func (s *Session) ProcessScannedQR(data string) error {
	if s.state != StateAwaitingScan {
		return ErrSessionState
	}
	qr, err := ParseQR(data)
	if err != nil {
		return s.fail(err)
	}
	s.peerQR = qr
	s.deadline = time.Unix(int64(qr.Timestamp), 0).Add(qrExpiry + sessionGrace)
	s.state = StateAwaitingProximity
	return nil
}

// RunProximityCheck executes the verifier handshake keyed on the scanned
// QR's audio challenge. Failure aborts the pairing with a distinct reason.
func (s *Session) RunProximityCheck(timeout time.Duration) error {
	if s.state != StateAwaitingProximity {
		return ErrSessionState
	}
	if time.Now().After(s.deadline) {
		return s.fail(ErrSessionExpired)
	}
	challenge := s.peerQR.AudioChallenge
	if err := s.verifier.EmitChallenge(challenge); err != nil {
		return s.fail(ErrProximityTooFar)
	}
	response, err := s.verifier.ListenForResponse(timeout)
	if err != nil {
		if errors.Is(err, ErrProximityTimeout) {
			return s.fail(ErrProximityTimeout)
		}
		return s.fail(ErrProximityTooFar)
	}
	if !s.verifier.VerifyResponse(challenge, response) {
		return s.fail(ErrProximityTooFar)
	}
	s.state = StateAwaitingResponse
	return nil
}

// BuildKeyAgreement produces the initiator's message: a fresh ephemeral
// X25519 key plus the local identity sealed under the derived SK. Call
// after the proximity check.
func (s *Session) BuildKeyAgreement() (*KeyAgreementMessage, error) {
	if s.state != StateAwaitingResponse {
		return nil, ErrSessionState
	}
	ephPriv, ephPub, err := crypto.NewX25519KeyPair()
	if err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	defer crypto.ZeroBytes(ephPriv)

	dh, err := crypto.X25519SharedSecret(ephPriv, s.peerQR.ExchangePublicKey)
	if err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	s.sharedSecret = crypto.KDF32(dh, x3dhInfo)
	crypto.ZeroBytes(dh)

	payload, err := json.Marshal(identityPayload{
		SigningPublicKey: s.identity.SigningPublicKey,
		DisplayName:      s.identity.DisplayName,
	})
	if err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	sealed, err := crypto.Encrypt(s.sharedSecret, payload)
	if err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	return &KeyAgreementMessage{EphemeralPublicKey: ephPub, Ciphertext: sealed}, nil
}

// Complete finalizes the initiator side once the responder's identity is
// known (carried back over the same sealed channel). A contact whose
// signing key is already registered raises the duplicate decision without
// writing anything.
func (s *Session) Complete(reply *KeyAgreementMessage) (*PairResult, error) {
	if s.state != StateAwaitingResponse || s.sharedSecret == nil {
		return nil, ErrSessionState
	}
	payload, err := crypto.Decrypt(s.sharedSecret, reply.Ciphertext)
	if err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	var peer identityPayload
	if err := json.Unmarshal(payload, &peer); err != nil {
		return nil, s.fail(ErrKeyAgreement)
	}
	result := s.buildResult(peer, ratchet.InitInitiator(s.sharedSecret, s.peerQR.ExchangePublicKey))
	return s.finish(result)
}

// HandleInitiation drives the responder side (the peer whose QR was
// scanned): derive SK from the initiator's ephemeral key and the long-term
// exchange key, unseal the initiator's identity, and return both the
// completed pairing and the sealed reply carrying our identity. A pairing
// that collides with a known signing key raises the duplicate decision
// without writing anything; ResolveDuplicate settles it and hands back the
// reply to send.
func (s *Session) HandleInitiation(msg *KeyAgreementMessage) (*PairResult, *KeyAgreementMessage, error) {
	if s.state != StateIdle && s.state != StateAwaitingScan {
		return nil, nil, ErrSessionState
	}
	dh, err := crypto.X25519SharedSecret(s.identity.ExchangePrivateKey(), msg.EphemeralPublicKey)
	if err != nil {
		return nil, nil, s.fail(ErrKeyAgreement)
	}
	s.sharedSecret = crypto.KDF32(dh, x3dhInfo)
	crypto.ZeroBytes(dh)

	payload, err := crypto.Decrypt(s.sharedSecret, msg.Ciphertext)
	if err != nil {
		return nil, nil, s.fail(ErrKeyAgreement)
	}
	var peer identityPayload
	if err := json.Unmarshal(payload, &peer); err != nil {
		return nil, nil, s.fail(ErrKeyAgreement)
	}

	replyPayload, err := json.Marshal(identityPayload{
		SigningPublicKey: s.identity.SigningPublicKey,
		DisplayName:      s.identity.DisplayName,
	})
	if err != nil {
		return nil, nil, s.fail(ErrKeyAgreement)
	}
	sealed, err := crypto.Encrypt(s.sharedSecret, replyPayload)
	if err != nil {
		return nil, nil, s.fail(ErrKeyAgreement)
	}
	reply := &KeyAgreementMessage{Ciphertext: sealed}

	result := s.buildResult(peer, ratchet.InitResponder(s.sharedSecret, s.identity.ExchangePrivateKey(), s.identity.ExchangePublicKey))
	if s.hasContact != nil && s.hasContact(result.Contact.ID) {
		s.pendingResult = result
		s.pendingReply = reply
		return nil, nil, ErrDuplicateContact
	}
	s.state = StateComplete
	return result, reply, nil
}

func (s *Session) buildResult(peer identityPayload, rs *ratchet.State) *PairResult {
	return &PairResult{
		Contact: models.Contact{
			ID:               hex.EncodeToString(peer.SigningPublicKey),
			SigningPublicKey: append([]byte(nil), peer.SigningPublicKey...),
			Card:             models.ContactCard{DisplayName: peer.DisplayName},
			SharedSecret:     append([]byte(nil), s.sharedSecret...),
			ExchangedAt:      time.Now().UTC(),
			Verified:         true,
		},
		Ratchet: rs,
	}
}

func (s *Session) finish(result *PairResult) (*PairResult, error) {
	if s.hasContact != nil && s.hasContact(result.Contact.ID) {
		s.pendingResult = result
		return nil, ErrDuplicateContact
	}
	s.state = StateComplete
	return result, nil
}

// ResolveDuplicate settles a pairing that collided with an existing
// contact, on either side of the exchange. Update re-binds the contact and
// completes; Keep completes without overwriting; Cancel abandons the
// session. On the responder side the sealed reply is returned for Update
// and Keep so the initiator is not left waiting; Cancel sends nothing.
func (s *Session) ResolveDuplicate(action DuplicateAction) (*PairResult, *KeyAgreementMessage, error) {
	if s.pendingResult == nil {
		return nil, nil, ErrSessionState
	}
	reply := s.pendingReply
	defer func() {
		s.pendingResult = nil
		s.pendingReply = nil
	}()
	switch action {
	case DuplicateUpdate:
		s.state = StateComplete
		return s.pendingResult, reply, nil
	case DuplicateKeep:
		s.state = StateComplete
		return nil, reply, nil
	default:
		s.fail(ErrDuplicateContact)
		return nil, nil, nil
	}
}
