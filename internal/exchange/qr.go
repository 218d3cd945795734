package exchange

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/internal/identity"
)

// QR payload v2, 189 bytes before base64:
// "WBEX" || version || signing_pub(32) || exchange_pub(32) ||
// exchange_token(32) || audio_challenge(16) || timestamp_be(8) ||
// signature(64). The signature covers everything after the magic and
// before itself.
const (
	protocolVersion = 2

	qrMagic       = "WBEX"
	qrPayloadSize = 189
	qrExpiry      = 5 * time.Minute

	sigStart = 125
)

var (
	ErrInvalidQRFormat        = errors.New("invalid qr payload")
	ErrInvalidProtocolVersion = errors.New("unsupported qr protocol version")
	ErrQRExpired              = errors.New("qr code expired")
	ErrQRSignature            = errors.New("qr signature does not verify")
)

// QR is a parsed exchange QR code.
type QR struct {
	Version          byte
	SigningPublicKey []byte
	ExchangePublicKey []byte
	ExchangeToken    []byte
	AudioChallenge   []byte
	Timestamp        uint64
	Signature        []byte
}

// GenerateQR builds a signed exchange QR for the identity with a fresh
// session token and proximity challenge.
func GenerateQR(id *identity.Identity) (*QR, error) {
	return generateQRAt(id, uint64(time.Now().UTC().Unix()))
}

func generateQRAt(id *identity.Identity, timestamp uint64) (*QR, error) {
	token, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, err
	}
	challenge, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	q := &QR{
		Version:           protocolVersion,
		SigningPublicKey:  append([]byte(nil), id.SigningPublicKey...),
		ExchangePublicKey: append([]byte(nil), id.ExchangePublicKey...),
		ExchangeToken:     token,
		AudioChallenge:    challenge,
		Timestamp:         timestamp,
	}
	q.Signature = id.Sign(q.signedRegion())
	return q, nil
}

func (q *QR) signedRegion() []byte {
	b := make([]byte, 0, sigStart-len(qrMagic))
	b = append(b, q.Version)
	b = append(b, q.SigningPublicKey...)
	b = append(b, q.ExchangePublicKey...)
	b = append(b, q.ExchangeToken...)
	b = append(b, q.AudioChallenge...)
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, q.Timestamp)
	return append(b, ts...)
}

// Encode renders the payload base64 for QR display.
func (q *QR) Encode() string {
	b := make([]byte, 0, qrPayloadSize)
	b = append(b, qrMagic...)
	b = append(b, q.signedRegion()...)
	b = append(b, q.Signature...)
	return base64.StdEncoding.EncodeToString(b)
}

// IsExpired reports whether the QR is past its five-minute lifetime.
func (q *QR) IsExpired() bool {
	return q.expiredAt(time.Now().UTC())
}

func (q *QR) expiredAt(now time.Time) bool {
	return uint64(now.Unix()) > q.Timestamp+uint64(qrExpiry/time.Second)
}

// ParseQR decodes and fully validates a scanned payload: magic, version,
// length, signature, and expiry, in that order. Nothing structured is
// returned before every check passes.
func ParseQR(data string) (*QR, error) {
	return parseQRAt(data, time.Now().UTC())
}

func parseQRAt(data string, now time.Time) (*QR, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidQRFormat
	}
	if len(raw) < len(qrMagic)+1 {
		return nil, ErrInvalidQRFormat
	}
	if string(raw[:len(qrMagic)]) != qrMagic {
		return nil, ErrInvalidQRFormat
	}
	if raw[4] != protocolVersion {
		return nil, ErrInvalidProtocolVersion
	}
	if len(raw) != qrPayloadSize {
		return nil, ErrInvalidQRFormat
	}

	q := &QR{
		Version:           raw[4],
		SigningPublicKey:  append([]byte(nil), raw[5:37]...),
		ExchangePublicKey: append([]byte(nil), raw[37:69]...),
		ExchangeToken:     append([]byte(nil), raw[69:101]...),
		AudioChallenge:    append([]byte(nil), raw[101:117]...),
		Timestamp:         binary.BigEndian.Uint64(raw[117:125]),
		Signature:         append([]byte(nil), raw[sigStart:]...),
	}
	if !crypto.Verify(q.SigningPublicKey, q.signedRegion(), q.Signature) {
		return nil, ErrQRSignature
	}
	if q.expiredAt(now) {
		return nil, ErrQRExpired
	}
	return q, nil
}
