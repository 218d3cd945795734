package securestore

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data via a temp file in the same directory followed
// by rename, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// WriteJSONAtomic marshals v and writes it atomically as plaintext JSON.
func WriteJSONAtomic(path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, payload, 0o600)
}

// WriteEncryptedJSON marshals, passphrase-encrypts, and atomically writes
// a JSON snapshot.
func WriteEncryptedJSON(path, passphrase string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	encrypted, err := Encrypt(passphrase, payload)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, encrypted, 0o600)
}

// ReadDecryptedFile reads and decrypts a file written by WriteEncryptedJSON.
func ReadDecryptedFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decrypt(passphrase, raw)
}
