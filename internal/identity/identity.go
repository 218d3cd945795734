package identity

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/pkg/models"
)

const (
	// MaxDevices caps the device set of one identity.
	MaxDevices = 8

	seedSize = 32

	hkdfInfoSigning  = "vauchi/identity/signing/v1"
	hkdfInfoExchange = "vauchi/identity/exchange/v1"
)

var (
	ErrEmptyDisplayName        = errors.New("display name must not be empty")
	ErrEmptyDeviceName         = errors.New("device name must not be empty")
	ErrMaxDevicesReached       = errors.New("device registry is at capacity")
	ErrDeviceAlreadyExists     = errors.New("device already registered")
	ErrDeviceNotFound          = errors.New("device not found")
	ErrCannotRemoveLastDevice  = errors.New("cannot revoke the last active device")
	ErrInvalidSignature        = errors.New("registry signature does not verify")
	ErrStaleRegistry           = errors.New("registry version is not newer than known")
	ErrInvalidSeed             = errors.New("invalid master seed")
)

// Identity is an owner principal. All keys derive deterministically from the
// master seed; the seed itself never leaves the device except inside a
// password-encrypted backup.
type Identity struct {
	seed        []byte
	signingPriv ed25519.PrivateKey

	SigningPublicKey  ed25519.PublicKey
	ExchangePublicKey []byte
	exchangePriv      []byte

	DisplayName string
	Registry    models.DeviceRegistry
}

// Create generates a fresh identity with a random master seed and a
// version-1 registry holding device index 0.
func Create(displayName string) (*Identity, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, ErrEmptyDisplayName
	}
	seed, err := crypto.RandomBytes(seedSize)
	if err != nil {
		return nil, err
	}
	return FromSeed(seed, displayName)
}

// FromSeed rebuilds an identity from a 32-byte master seed, deriving the
// key hierarchy and a fresh version-1 registry with device index 0.
func FromSeed(seed []byte, displayName string) (*Identity, error) {
	if len(seed) != seedSize {
		return nil, ErrInvalidSeed
	}
	id := &Identity{
		seed:        append([]byte(nil), seed...),
		DisplayName: displayName,
	}
	id.deriveKeys()

	device, err := id.deriveDevice(0, "primary")
	if err != nil {
		return nil, err
	}
	id.Registry = models.DeviceRegistry{Version: 1, Devices: []models.Device{device}}
	id.signRegistry()
	return id, nil
}

func (id *Identity) deriveKeys() {
	signingSeed := crypto.KDF32(id.seed, hkdfInfoSigning)
	id.signingPriv = ed25519.NewKeyFromSeed(signingSeed)
	id.SigningPublicKey = id.signingPriv.Public().(ed25519.PublicKey)
	crypto.ZeroBytes(signingSeed)

	id.exchangePriv = crypto.KDF32(id.seed, hkdfInfoExchange)
	pub, err := crypto.X25519PublicKey(id.exchangePriv)
	if err != nil {
		// Derivation of a 32-byte scalar cannot produce an invalid size.
		panic(fmt.Sprintf("identity: exchange key derivation: %v", err))
	}
	id.ExchangePublicKey = pub
}

// deriveDevice derives the public device ID and the exchange keypair on
// independent HKDF branches of the per-index device seed. The ID is safe
// to expose to the relay and the plaintext store columns; nothing secret
// is recoverable from it.
func (id *Identity) deriveDevice(index int, name string) (models.Device, error) {
	deviceSeed := crypto.KDF32(id.seed, fmt.Sprintf("vauchi/device/%d", index))
	defer crypto.ZeroBytes(deviceSeed)
	deviceID := crypto.KDF32(deviceSeed, "vauchi/device/id/v1")
	exchangePriv := crypto.KDF32(deviceSeed, "vauchi/device/exchange/v1")
	defer crypto.ZeroBytes(exchangePriv)
	exchangePub, err := crypto.X25519PublicKey(exchangePriv)
	if err != nil {
		return models.Device{}, err
	}
	return models.Device{
		DeviceID:          hex.EncodeToString(deviceID),
		Index:             index,
		Name:              name,
		ExchangePublicKey: exchangePub,
		Active:            true,
		JoinedAt:          time.Now().UTC().Unix(),
	}, nil
}

// DeviceExchangeKey re-derives the X25519 private key for a registered
// device index.
func (id *Identity) DeviceExchangeKey(index int) []byte {
	deviceSeed := crypto.KDF32(id.seed, fmt.Sprintf("vauchi/device/%d", index))
	defer crypto.ZeroBytes(deviceSeed)
	return crypto.KDF32(deviceSeed, "vauchi/device/exchange/v1")
}

// ContactID is the stable peer-facing identifier: the hex encoding of the
// signing public key.
func (id *Identity) ContactID() string {
	return hex.EncodeToString(id.SigningPublicKey)
}

// Fingerprint renders a short human-comparable digest of the signing key
// for out-of-band verification.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.SigningPublicKey)
}

// Fingerprint digests a signing public key into a base58 string.
func Fingerprint(signingPublicKey []byte) string {
	sum := blake2b.Sum256(signingPublicKey)
	return base58.Encode(sum[:16])
}

// Sign signs message with the identity signing key.
func (id *Identity) Sign(message []byte) []byte {
	return crypto.Sign(id.signingPriv, message)
}

// ExchangePrivateKey exposes the long-term X25519 key for pairing.
func (id *Identity) ExchangePrivateKey() []byte {
	return id.exchangePriv
}

// Zero scrubs the identity's secret material.
func (id *Identity) Zero() {
	crypto.ZeroBytes(id.seed)
	crypto.ZeroBytes(id.signingPriv)
	crypto.ZeroBytes(id.exchangePriv)
}

// registrySignable returns the bytes the registry signature covers:
// version (8 bytes big-endian) || canonical JSON of the device list.
func registrySignable(version uint64, devices []models.Device) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	serialized, _ := json.Marshal(devices)
	return append(buf, serialized...)
}

func (id *Identity) signRegistry() {
	id.Registry.Signature = crypto.Sign(id.signingPriv, registrySignable(id.Registry.Version, id.Registry.Devices))
}

// VerifyRegistry checks a registry signature under the given signing key.
func VerifyRegistry(reg *models.DeviceRegistry, signingPublicKey ed25519.PublicKey) bool {
	return crypto.Verify(signingPublicKey, registrySignable(reg.Version, reg.Devices), reg.Signature)
}

// AcceptRegistry validates an inbound registry against the peer's signing
// key and the locally known version. Lower or equal versions are rejected.
func AcceptRegistry(reg *models.DeviceRegistry, signingPublicKey ed25519.PublicKey, knownVersion uint64) error {
	if !VerifyRegistry(reg, signingPublicKey) {
		return ErrInvalidSignature
	}
	if reg.Version <= knownVersion {
		return ErrStaleRegistry
	}
	return nil
}
