package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"vauchi/go-core/pkg/models"
)

// SaveContact inserts or replaces a contact. Card and shared key are
// encrypted before they reach the database.
func (s *Store) SaveContact(c models.Contact) error {
	cardJSON, err := json.Marshal(c.Card)
	if err != nil {
		return ErrInvalidData
	}
	cardBlob, err := s.seal(cardJSON)
	if err != nil {
		return err
	}
	keyBlob, err := s.seal(c.SharedSecret)
	if err != nil {
		return err
	}
	visibilityJSON, err := json.Marshal(c.Visibility)
	if err != nil {
		return ErrInvalidData
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO contacts
        (contact_id, signing_public_key, card_encrypted, shared_key_encrypted,
         exchanged_at, verified, hidden, blocked, visibility_json)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SigningPublicKey, cardBlob, keyBlob,
		c.ExchangedAt.UTC().Unix(), boolToInt(c.Verified), boolToInt(c.Hidden), boolToInt(c.Blocked),
		string(visibilityJSON))
	return err
}

// Contact loads one contact by ID.
func (s *Store) Contact(contactID string) (models.Contact, error) {
	row := s.db.QueryRow(`SELECT contact_id, signing_public_key, card_encrypted,
        shared_key_encrypted, exchanged_at, verified, hidden, blocked, visibility_json
        FROM contacts WHERE contact_id = ?`, contactID)
	c, err := s.scanContact(row)
	if err == sql.ErrNoRows {
		return models.Contact{}, ErrNotFound
	}
	return c, err
}

// Contacts lists every stored contact.
func (s *Store) Contacts() ([]models.Contact, error) {
	rows, err := s.db.Query(`SELECT contact_id, signing_public_key, card_encrypted,
        shared_key_encrypted, exchanged_at, verified, hidden, blocked, visibility_json
        FROM contacts ORDER BY contact_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Contact
	for rows.Next() {
		c, err := s.scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanContact(row rowScanner) (models.Contact, error) {
	var c models.Contact
	var cardBlob, keyBlob []byte
	var exchangedAt int64
	var verified, hidden, blocked int
	var visibilityJSON string
	if err := row.Scan(&c.ID, &c.SigningPublicKey, &cardBlob, &keyBlob,
		&exchangedAt, &verified, &hidden, &blocked, &visibilityJSON); err != nil {
		return models.Contact{}, err
	}
	cardJSON, err := s.open(cardBlob)
	if err != nil {
		return models.Contact{}, err
	}
	if err := json.Unmarshal(cardJSON, &c.Card); err != nil {
		return models.Contact{}, ErrInvalidData
	}
	if c.SharedSecret, err = s.open(keyBlob); err != nil {
		return models.Contact{}, err
	}
	if err := json.Unmarshal([]byte(visibilityJSON), &c.Visibility); err != nil {
		return models.Contact{}, ErrInvalidData
	}
	c.ExchangedAt = time.Unix(exchangedAt, 0).UTC()
	c.Verified = verified != 0
	c.Hidden = hidden != 0
	c.Blocked = blocked != 0
	return c, nil
}

// DeleteContact removes a contact and its ratchet state.
func (s *Store) DeleteContact(contactID string) error {
	if _, err := s.db.Exec(`DELETE FROM contact_ratchets WHERE contact_id = ?`, contactID); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM contacts WHERE contact_id = ?`, contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetContactFlags updates the hidden and blocked flags.
func (s *Store) SetContactFlags(contactID string, hidden, blocked bool) error {
	res, err := s.db.Exec(`UPDATE contacts SET hidden = ?, blocked = ? WHERE contact_id = ?`,
		boolToInt(hidden), boolToInt(blocked), contactID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveOwnCard stores the singleton own card as plaintext JSON.
func (s *Store) SaveOwnCard(card models.ContactCard) error {
	raw, err := json.Marshal(card)
	if err != nil {
		return ErrInvalidData
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO own_card (id, card_json, updated_at) VALUES (1, ?, ?)`,
		string(raw), time.Now().UTC().Unix())
	return err
}

// OwnCard loads the singleton own card.
func (s *Store) OwnCard() (models.ContactCard, error) {
	var raw string
	err := s.db.QueryRow(`SELECT card_json FROM own_card WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.ContactCard{}, ErrNotFound
	}
	if err != nil {
		return models.ContactCard{}, err
	}
	var card models.ContactCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return models.ContactCard{}, ErrInvalidData
	}
	return card, nil
}

// SaveIdentityBackup stores the already-encrypted identity backup blob.
func (s *Store) SaveIdentityBackup(blob []byte, displayName string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO identity (id, backup_blob, display_name, updated_at)
        VALUES (1, ?, ?, ?)`, blob, displayName, time.Now().UTC().Unix())
	return err
}

// IdentityBackup loads the stored backup blob.
func (s *Store) IdentityBackup() ([]byte, string, error) {
	var blob []byte
	var name string
	err := s.db.QueryRow(`SELECT backup_blob, display_name FROM identity WHERE id = 1`).Scan(&blob, &name)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	return blob, name, err
}

// SaveRatchetState stores a contact's ratchet blob, AEAD-encrypted with the
// store key.
func (s *Store) SaveRatchetState(contactID string, stateBlob []byte, isInitiator bool) error {
	sealed, err := s.seal(stateBlob)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO contact_ratchets
        (contact_id, state_encrypted, is_initiator, updated_at) VALUES (?, ?, ?, ?)`,
		contactID, sealed, boolToInt(isInitiator), time.Now().UTC().Unix())
	return err
}

// RatchetState loads and decrypts the ratchet blob for a contact.
func (s *Store) RatchetState(contactID string) (stateBlob []byte, isInitiator bool, err error) {
	var initiator int
	err = s.db.QueryRow(`SELECT state_encrypted, is_initiator FROM contact_ratchets
        WHERE contact_id = ?`, contactID).Scan(&stateBlob, &initiator)
	if err == sql.ErrNoRows {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	plain, err := s.open(stateBlob)
	if err != nil {
		return nil, false, err
	}
	return plain, initiator != 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
