package identity

import (
	"bytes"
	"encoding/hex"
	"testing"

	"vauchi/go-core/internal/crypto"
)

func TestCreateDerivesDeterministicKeys(t *testing.T) {
	seed := bytes.Repeat([]byte{0x11}, 32)
	a, err := FromSeed(seed, "Alice")
	if err != nil {
		t.Fatalf("from seed failed: %v", err)
	}
	b, err := FromSeed(seed, "Alice")
	if err != nil {
		t.Fatalf("from seed failed: %v", err)
	}
	if !bytes.Equal(a.SigningPublicKey, b.SigningPublicKey) {
		t.Fatal("signing keys must be deterministic in the seed")
	}
	if !bytes.Equal(a.ExchangePublicKey, b.ExchangePublicKey) {
		t.Fatal("exchange keys must be deterministic in the seed")
	}
	if a.Registry.Devices[0].DeviceID != b.Registry.Devices[0].DeviceID {
		t.Fatal("device id must be a pure function of (seed, index)")
	}
}

func TestDeviceIDRevealsNoKeyMaterial(t *testing.T) {
	seed := bytes.Repeat([]byte{0x44}, 32)
	id, err := FromSeed(seed, "Alice")
	if err != nil {
		t.Fatalf("from seed failed: %v", err)
	}
	device := id.Registry.Devices[0]

	// The device ID is a sibling HKDF branch, not the device seed itself.
	deviceSeed := crypto.KDF32(seed, "vauchi/device/0")
	if device.DeviceID == hex.EncodeToString(deviceSeed) {
		t.Fatal("device id must not expose the device seed")
	}

	// Knowing the public ID must not let anyone recompute the exchange key.
	idBytes, err := hex.DecodeString(device.DeviceID)
	if err != nil {
		t.Fatalf("device id must be hex: %v", err)
	}
	guessPriv := crypto.KDF32(idBytes, "vauchi/device/exchange/v1")
	guessPub, err := crypto.X25519PublicKey(guessPriv)
	if err != nil {
		t.Fatalf("x25519 failed: %v", err)
	}
	if bytes.Equal(guessPub, device.ExchangePublicKey) {
		t.Fatal("exchange key must not be derivable from the device id")
	}

	// The identity itself still re-derives the real key for its index.
	realPriv := id.DeviceExchangeKey(0)
	realPub, err := crypto.X25519PublicKey(realPriv)
	if err != nil {
		t.Fatalf("x25519 failed: %v", err)
	}
	if !bytes.Equal(realPub, device.ExchangePublicKey) {
		t.Fatal("device exchange key derivation out of sync with registry")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	if _, err := Create("  "); err != ErrEmptyDisplayName {
		t.Fatalf("expected ErrEmptyDisplayName, got %v", err)
	}
}

func TestRegistrySignedAndVersioned(t *testing.T) {
	id, err := Create("Alice")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id.Registry.Version != 1 {
		t.Fatalf("fresh registry must start at version 1, got %d", id.Registry.Version)
	}
	if !VerifyRegistry(&id.Registry, id.SigningPublicKey) {
		t.Fatal("fresh registry must verify")
	}

	if _, err := id.AddDevice("laptop"); err != nil {
		t.Fatalf("add device failed: %v", err)
	}
	if id.Registry.Version != 2 {
		t.Fatalf("add must increment version, got %d", id.Registry.Version)
	}
	if !VerifyRegistry(&id.Registry, id.SigningPublicKey) {
		t.Fatal("registry must verify after mutation")
	}
}

func TestAddDeviceCapacity(t *testing.T) {
	id, _ := Create("Alice")
	for i := 1; i < MaxDevices; i++ {
		if _, err := id.AddDevice(deviceName(i)); err != nil {
			t.Fatalf("add device %d failed: %v", i, err)
		}
	}
	if _, err := id.AddDevice("overflow"); err != ErrMaxDevicesReached {
		t.Fatalf("expected ErrMaxDevicesReached, got %v", err)
	}
}

func deviceName(i int) string {
	return string(rune('a'+i)) + "-device"
}

func TestAddDeviceRejectsEmptyAndDuplicateNames(t *testing.T) {
	id, _ := Create("Alice")
	if _, err := id.AddDevice(""); err != ErrEmptyDeviceName {
		t.Fatalf("expected ErrEmptyDeviceName, got %v", err)
	}
	if _, err := id.AddDevice("phone"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := id.AddDevice("phone"); err != ErrDeviceAlreadyExists {
		t.Fatalf("expected ErrDeviceAlreadyExists, got %v", err)
	}
}

func TestRevokeLastActiveDeviceFails(t *testing.T) {
	id, _ := Create("Alice")
	primary := id.Registry.Devices[0].DeviceID
	if err := id.RevokeDevice(primary); err != ErrCannotRemoveLastDevice {
		t.Fatalf("expected ErrCannotRemoveLastDevice, got %v", err)
	}

	if _, err := id.AddDevice("tablet"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := id.RevokeDevice(primary); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if id.Registry.ActiveCount() != 1 {
		t.Fatalf("expected one active device, got %d", id.Registry.ActiveCount())
	}
	if id.Registry.Version != 3 {
		t.Fatalf("revoke must increment version, got %d", id.Registry.Version)
	}
}

func TestAcceptRegistryRequiresStrictlyNewerVersion(t *testing.T) {
	id, _ := Create("Alice")
	if _, err := id.AddDevice("laptop"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	reg := id.Registry

	if err := AcceptRegistry(&reg, id.SigningPublicKey, 1); err != nil {
		t.Fatalf("newer registry must be accepted: %v", err)
	}
	if err := AcceptRegistry(&reg, id.SigningPublicKey, 2); err != ErrStaleRegistry {
		t.Fatalf("equal version must be rejected, got %v", err)
	}
	if err := AcceptRegistry(&reg, id.SigningPublicKey, 5); err != ErrStaleRegistry {
		t.Fatalf("older version must be rejected, got %v", err)
	}

	reg.Devices[0].Name = "forged"
	if err := AcceptRegistry(&reg, id.SigningPublicKey, 1); err != ErrInvalidSignature {
		t.Fatalf("forged registry must fail signature check, got %v", err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	id, _ := Create("Alice")
	if _, err := id.AddDevice("laptop"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	data, err := id.ExportBackup("hunter2")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	restored, err := ImportBackup(data, "hunter2")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !bytes.Equal(restored.SigningPublicKey, id.SigningPublicKey) {
		t.Fatal("restored identity must derive the same signing key")
	}
	if restored.Registry.Version != id.Registry.Version {
		t.Fatal("restored registry version mismatch")
	}
	if restored.DisplayName != "Alice" {
		t.Fatalf("restored display name mismatch: %s", restored.DisplayName)
	}
}

func TestBackupWrongPasswordGenericError(t *testing.T) {
	id, _ := Create("Alice")
	data, _ := id.ExportBackup("right")
	if _, err := ImportBackup(data, "wrong"); err != ErrBackupFailed {
		t.Fatalf("expected generic ErrBackupFailed, got %v", err)
	}
	data[len(data)-1] ^= 0x01
	if _, err := ImportBackup(data, "right"); err != ErrBackupFailed {
		t.Fatalf("tamper must yield the same generic error, got %v", err)
	}
}

func TestRecoveryPhraseRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x22}, 32)
	id, _ := FromSeed(seed, "Alice")
	phrase, err := id.RecoveryPhrase()
	if err != nil {
		t.Fatalf("mnemonic export failed: %v", err)
	}
	restored, err := FromRecoveryPhrase(phrase, "Alice")
	if err != nil {
		t.Fatalf("mnemonic import failed: %v", err)
	}
	if !bytes.Equal(restored.SigningPublicKey, id.SigningPublicKey) {
		t.Fatal("mnemonic round trip must preserve the key hierarchy")
	}
}

func TestFingerprintStable(t *testing.T) {
	seed := bytes.Repeat([]byte{0x33}, 32)
	a, _ := FromSeed(seed, "Alice")
	b, _ := FromSeed(seed, "Alice")
	if a.Fingerprint() == "" || a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint must be non-empty and stable")
	}
}
