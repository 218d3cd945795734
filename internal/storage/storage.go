package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/internal/securestore"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrAlreadyExists = errors.New("storage: already exists")
	ErrInvalidData   = errors.New("storage: invalid data")
	ErrEncryption    = errors.New("storage: at-rest encryption failed")
)

// Store is the encrypted relational store. One Store owns one SQLite
// connection; callers serialize writes through it. Sensitive columns
// (contact card, shared key, ratchet state) are AEAD-encrypted with the
// store key before touching disk.
type Store struct {
	db  *sql.DB
	key []byte
}

const schema = `
CREATE TABLE IF NOT EXISTS contacts (
    contact_id          TEXT PRIMARY KEY,
    signing_public_key  BLOB NOT NULL,
    card_encrypted      BLOB NOT NULL,
    shared_key_encrypted BLOB NOT NULL,
    exchanged_at        INTEGER NOT NULL,
    verified            INTEGER NOT NULL DEFAULT 0,
    hidden              INTEGER NOT NULL DEFAULT 0,
    blocked             INTEGER NOT NULL DEFAULT 0,
    visibility_json     TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS own_card (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    card_json  TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS identity (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    backup_blob  BLOB NOT NULL,
    display_name TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_updates (
    update_id   TEXT PRIMARY KEY,
    contact_id  TEXT NOT NULL,
    update_type TEXT NOT NULL,
    payload     BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT 'pending',
    last_error  TEXT,
    retry_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pending_contact_created
    ON pending_updates(contact_id, created_at);
CREATE TABLE IF NOT EXISTS contact_ratchets (
    contact_id      TEXT PRIMARY KEY,
    state_encrypted BLOB NOT NULL,
    is_initiator    INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS device_info (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    device_id    TEXT NOT NULL,
    device_index INTEGER NOT NULL,
    device_name  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS device_registry (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    registry_json TEXT NOT NULL,
    version       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS device_sync_state (
    device_id         TEXT PRIMARY KEY,
    state_json        TEXT NOT NULL,
    last_sync_version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS version_vector (
    id          INTEGER PRIMARY KEY CHECK (id = 1),
    vector_json TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS visibility_labels (
    label_id      TEXT PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    contacts_json TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS delivery_records (
    message_id   TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL,
    status       TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS device_deliveries (
    message_id   TEXT NOT NULL,
    device_id    TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    status       TEXT NOT NULL,
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (message_id, device_id)
);
CREATE TABLE IF NOT EXISTS retry_entries (
    message_id   TEXT PRIMARY KEY,
    recipient_id TEXT NOT NULL,
    payload      BLOB NOT NULL,
    attempt      INTEGER NOT NULL,
    next_retry   INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    max_attempts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_retry_next ON retry_entries(next_retry);
CREATE TABLE IF NOT EXISTS field_validations (
    contact_id   TEXT NOT NULL,
    field_id     TEXT NOT NULL,
    validator_id TEXT NOT NULL,
    signature    BLOB NOT NULL,
    validated_at INTEGER NOT NULL,
    PRIMARY KEY (contact_id, field_id, validator_id)
);
`

// Open creates or opens the store at path with the given 256-bit key,
// creating any missing tables and indexes.
func Open(path string, key []byte) (*Store, error) {
	if len(key) != crypto.KeySize {
		return nil, ErrEncryption
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, key: append([]byte(nil), key...)}, nil
}

// Close releases the connection and scrubs the store key.
func (s *Store) Close() error {
	crypto.ZeroBytes(s.key)
	return s.db.Close()
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	blob, err := securestore.EncryptWithKey(s.key, plaintext)
	if err != nil {
		return nil, ErrEncryption
	}
	return blob, nil
}

func (s *Store) open(blob []byte) ([]byte, error) {
	plaintext, err := securestore.DecryptWithKey(s.key, blob)
	if err != nil {
		return nil, ErrEncryption
	}
	return plaintext, nil
}

// LoadOrCreateStoreKey returns the store key from the fallback key file,
// creating it on first use. The file is AEAD-wrapped under a byte string
// derived deterministically from its own location: defense in depth
// against casual reads, not secrecy — deployments with an OS keyring keep
// the key there instead.
func LoadOrCreateStoreKey(path string) ([]byte, error) {
	wrap := crypto.KDF32([]byte(filepath.Clean(path)), "vauchi/storage/keywrap/v1")
	defer crypto.ZeroBytes(wrap)

	if raw, err := os.ReadFile(path); err == nil {
		key, err := securestore.DecryptWithKey(wrap, raw)
		if err != nil {
			return nil, ErrInvalidData
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	key, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := securestore.EncryptWithKey(wrap, key)
	if err != nil {
		return nil, err
	}
	if err := securestore.WriteFileAtomic(path, wrapped, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
