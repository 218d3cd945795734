package storage

import (
	"database/sql"

	"vauchi/go-core/pkg/models"
)

// SaveDeliveryRecord upserts the aggregate per-recipient record.
func (s *Store) SaveDeliveryRecord(r models.DeliveryRecord) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO delivery_records
        (message_id, recipient_id, status, updated_at) VALUES (?, ?, ?, ?)`,
		r.MessageID, r.RecipientID, string(r.Status), r.UpdatedAt)
	return err
}

// DeliveryRecord loads the aggregate record for a message.
func (s *Store) DeliveryRecord(messageID string) (models.DeliveryRecord, error) {
	var r models.DeliveryRecord
	var status string
	err := s.db.QueryRow(`SELECT message_id, recipient_id, status, updated_at
        FROM delivery_records WHERE message_id = ?`, messageID).
		Scan(&r.MessageID, &r.RecipientID, &status, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.DeliveryRecord{}, ErrNotFound
	}
	r.Status = models.DeliveryStatus(status)
	return r, err
}

// CreateDeviceDeliveries inserts the per-device fanout rows for a message.
func (s *Store) CreateDeviceDeliveries(records []models.DeviceDeliveryRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := tx.Exec(`INSERT INTO device_deliveries
            (message_id, device_id, recipient_id, status, updated_at)
            VALUES (?, ?, ?, ?, ?)`,
			r.MessageID, r.DeviceID, r.RecipientID, string(r.Status), r.UpdatedAt); err != nil {
			tx.Rollback()
			return ErrAlreadyExists
		}
	}
	return tx.Commit()
}

// DeviceDeliveries lists the fanout rows for one message.
func (s *Store) DeviceDeliveries(messageID string) ([]models.DeviceDeliveryRecord, error) {
	rows, err := s.db.Query(`SELECT message_id, device_id, recipient_id, status, updated_at
        FROM device_deliveries WHERE message_id = ? ORDER BY device_id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.DeviceDeliveryRecord
	for rows.Next() {
		var r models.DeviceDeliveryRecord
		var status string
		if err := rows.Scan(&r.MessageID, &r.DeviceID, &r.RecipientID, &status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = models.DeliveryStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateDeviceDeliveryStatus advances one device's delivery state.
func (s *Store) UpdateDeviceDeliveryStatus(messageID, deviceID string, status models.DeliveryStatus, updatedAt int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE device_deliveries SET status = ?, updated_at = ?
        WHERE message_id = ? AND device_id = ?`, string(status), updatedAt, messageID, deviceID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Retry entries back the retry.Store interface.

func (s *Store) CreateRetryEntry(e models.RetryEntry) error {
	_, err := s.db.Exec(`INSERT INTO retry_entries
        (message_id, recipient_id, payload, attempt, next_retry, created_at, max_attempts)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.MessageID, e.RecipientID, e.Payload, e.Attempt, e.NextRetry, e.CreatedAt, e.MaxAttempts)
	if err != nil {
		return ErrAlreadyExists
	}
	return nil
}

func (s *Store) RetryEntry(messageID string) (models.RetryEntry, error) {
	var e models.RetryEntry
	err := s.db.QueryRow(`SELECT message_id, recipient_id, payload, attempt, next_retry, created_at, max_attempts
        FROM retry_entries WHERE message_id = ?`, messageID).
		Scan(&e.MessageID, &e.RecipientID, &e.Payload, &e.Attempt, &e.NextRetry, &e.CreatedAt, &e.MaxAttempts)
	if err == sql.ErrNoRows {
		return models.RetryEntry{}, ErrNotFound
	}
	return e, err
}

func (s *Store) DueRetries(now int64) ([]models.RetryEntry, error) {
	rows, err := s.db.Query(`SELECT message_id, recipient_id, payload, attempt, next_retry, created_at, max_attempts
        FROM retry_entries WHERE next_retry <= ? ORDER BY next_retry`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RetryEntry
	for rows.Next() {
		var e models.RetryEntry
		if err := rows.Scan(&e.MessageID, &e.RecipientID, &e.Payload, &e.Attempt, &e.NextRetry, &e.CreatedAt, &e.MaxAttempts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) IncrementRetryAttempt(messageID string, nextRetry int64) (bool, error) {
	res, err := s.db.Exec(`UPDATE retry_entries SET attempt = attempt + 1, next_retry = ?
        WHERE message_id = ?`, nextRetry, messageID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) DeleteRetryEntry(messageID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM retry_entries WHERE message_id = ?`, messageID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
