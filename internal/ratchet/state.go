package ratchet

import (
	"encoding/json"

	"vauchi/go-core/internal/crypto"
)

// SerializeEncrypted renders the full channel state, skipped-key cache
// included, as an AEAD-encrypted blob under the at-rest storage key.
func (s *State) SerializeEncrypted(storageKey []byte) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(raw)
	return crypto.Encrypt(storageKey, raw)
}

// LoadEncrypted restores a channel state written by SerializeEncrypted.
func LoadEncrypted(storageKey, blob []byte) (*State, error) {
	raw, err := crypto.Decrypt(storageKey, blob)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(raw)
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Skipped == nil {
		s.Skipped = map[string][]byte{}
	}
	return &s, nil
}
