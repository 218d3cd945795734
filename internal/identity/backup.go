package identity

import (
	"encoding/json"
	"errors"

	"github.com/tyler-smith/go-bip39"

	"vauchi/go-core/internal/securestore"
	"vauchi/go-core/pkg/models"
)

// ErrBackupFailed covers wrong password and tampered backup data alike; the
// caller learns nothing about which cryptographic step failed.
var ErrBackupFailed = errors.New("backup could not be decrypted")

type backupPayload struct {
	Seed        []byte                `json:"seed"`
	DisplayName string                `json:"display_name"`
	Registry    models.DeviceRegistry `json:"registry"`
}

// ExportBackup serializes (seed, display name, registry) and encrypts it
// under an Argon2id-derived key. Salt and KDF parameters are embedded in
// the envelope.
func (id *Identity) ExportBackup(password string) ([]byte, error) {
	payload, err := json.Marshal(backupPayload{
		Seed:        id.seed,
		DisplayName: id.DisplayName,
		Registry:    id.Registry,
	})
	if err != nil {
		return nil, err
	}
	return securestore.Encrypt(password, payload)
}

// ImportBackup restores an identity from an exported backup. The restored
// identity keeps the backed-up registry rather than minting a new one.
func ImportBackup(data []byte, password string) (*Identity, error) {
	raw, err := securestore.Decrypt(password, data)
	if err != nil {
		return nil, ErrBackupFailed
	}
	var payload backupPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrBackupFailed
	}
	if len(payload.Seed) != seedSize {
		return nil, ErrBackupFailed
	}
	id := &Identity{
		seed:        append([]byte(nil), payload.Seed...),
		DisplayName: payload.DisplayName,
		Registry:    payload.Registry,
	}
	id.deriveKeys()
	if !VerifyRegistry(&id.Registry, id.SigningPublicKey) {
		return nil, ErrBackupFailed
	}
	return id, nil
}

// RecoveryPhrase renders the master seed as a BIP-39 mnemonic for offline
// transcription.
func (id *Identity) RecoveryPhrase() (string, error) {
	return bip39.NewMnemonic(id.seed)
}

// FromRecoveryPhrase rebuilds an identity from a mnemonic. The device
// registry restarts at version 1 with a fresh primary device; peers learn
// the new registry through the normal signed-update path.
func FromRecoveryPhrase(mnemonic, displayName string) (*Identity, error) {
	seed, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, ErrInvalidSeed
	}
	return FromSeed(seed, displayName)
}
