package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"vauchi/go-core/pkg/models"
)

// SaveDeviceInfo stores the local device identity singleton.
func (s *Store) SaveDeviceInfo(deviceID string, index int, name string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO device_info (id, device_id, device_index, device_name)
        VALUES (1, ?, ?, ?)`, deviceID, index, name)
	return err
}

// DeviceInfo loads the local device identity.
func (s *Store) DeviceInfo() (deviceID string, index int, name string, err error) {
	err = s.db.QueryRow(`SELECT device_id, device_index, device_name FROM device_info WHERE id = 1`).
		Scan(&deviceID, &index, &name)
	if err == sql.ErrNoRows {
		err = ErrNotFound
	}
	return
}

// SaveDeviceRegistry persists the signed registry JSON and its version.
func (s *Store) SaveDeviceRegistry(reg models.DeviceRegistry) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return ErrInvalidData
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO device_registry (id, registry_json, version)
        VALUES (1, ?, ?)`, string(raw), reg.Version)
	return err
}

// DeviceRegistry loads the stored registry.
func (s *Store) DeviceRegistry() (models.DeviceRegistry, error) {
	var raw string
	err := s.db.QueryRow(`SELECT registry_json FROM device_registry WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.DeviceRegistry{}, ErrNotFound
	}
	if err != nil {
		return models.DeviceRegistry{}, err
	}
	var reg models.DeviceRegistry
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return models.DeviceRegistry{}, ErrInvalidData
	}
	return reg, nil
}

// SaveDeviceSyncState records the inter-device sync version for a peer
// device of this identity.
func (s *Store) SaveDeviceSyncState(deviceID string, stateJSON string, lastVersion uint64) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO device_sync_state
        (device_id, state_json, last_sync_version) VALUES (?, ?, ?)`,
		deviceID, stateJSON, lastVersion)
	return err
}

// DeviceSyncState loads the sync state for one device.
func (s *Store) DeviceSyncState(deviceID string) (stateJSON string, lastVersion uint64, err error) {
	err = s.db.QueryRow(`SELECT state_json, last_sync_version FROM device_sync_state
        WHERE device_id = ?`, deviceID).Scan(&stateJSON, &lastVersion)
	if err == sql.ErrNoRows {
		err = ErrNotFound
	}
	return
}

// SaveVersionVector stores the local causality vector.
func (s *Store) SaveVersionVector(vector map[string]uint64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return ErrInvalidData
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO version_vector (id, vector_json, updated_at)
        VALUES (1, ?, ?)`, string(raw), time.Now().UTC().Unix())
	return err
}

// VersionVector loads the local causality vector; missing means empty.
func (s *Store) VersionVector() (map[string]uint64, error) {
	var raw string
	err := s.db.QueryRow(`SELECT vector_json FROM version_vector WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]uint64{}, nil
	}
	if err != nil {
		return nil, err
	}
	var vector map[string]uint64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, ErrInvalidData
	}
	return vector, nil
}

// SaveVisibilityLabel upserts a UI grouping label with its contact set.
func (s *Store) SaveVisibilityLabel(labelID, name string, contactIDs []string) error {
	raw, err := json.Marshal(contactIDs)
	if err != nil {
		return ErrInvalidData
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO visibility_labels (label_id, name, contacts_json)
        VALUES (?, ?, ?)`, labelID, name, string(raw))
	return err
}

// VisibilityLabel loads one label's contact set.
func (s *Store) VisibilityLabel(labelID string) (name string, contactIDs []string, err error) {
	var raw string
	err = s.db.QueryRow(`SELECT name, contacts_json FROM visibility_labels WHERE label_id = ?`, labelID).
		Scan(&name, &raw)
	if err == sql.ErrNoRows {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	if err = json.Unmarshal([]byte(raw), &contactIDs); err != nil {
		return "", nil, ErrInvalidData
	}
	return name, contactIDs, nil
}

// SaveFieldValidation records a peer attestation over one card field.
func (s *Store) SaveFieldValidation(contactID, fieldID, validatorID string, signature []byte) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO field_validations
        (contact_id, field_id, validator_id, signature, validated_at)
        VALUES (?, ?, ?, ?, ?)`,
		contactID, fieldID, validatorID, signature, time.Now().UTC().Unix())
	return err
}

// FieldValidations lists attestations for one contact field.
func (s *Store) FieldValidations(contactID, fieldID string) (map[string][]byte, error) {
	rows, err := s.db.Query(`SELECT validator_id, signature FROM field_validations
        WHERE contact_id = ? AND field_id = ?`, contactID, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var validatorID string
		var signature []byte
		if err := rows.Scan(&validatorID, &signature); err != nil {
			return nil, err
		}
		out[validatorID] = signature
	}
	return out, rows.Err()
}
