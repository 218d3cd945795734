package storage

import (
	"database/sql"

	"vauchi/go-core/pkg/models"
)

// The pending_updates table backs the sync manager's Queue interface.

func (s *Store) SavePendingUpdate(u models.PendingUpdate) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO pending_updates
        (update_id, contact_id, update_type, payload, created_at, retry_count, status, last_error, retry_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UpdateID, u.ContactID, string(u.Type), u.Payload, u.CreatedAt,
		u.RetryCount, string(u.Status), u.LastError, u.RetryAt)
	return err
}

func (s *Store) PendingUpdates(contactID string) ([]models.PendingUpdate, error) {
	rows, err := s.db.Query(`SELECT update_id, contact_id, update_type, payload, created_at,
        retry_count, status, last_error, retry_at
        FROM pending_updates WHERE contact_id = ? ORDER BY created_at`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingUpdates(rows)
}

func (s *Store) AllPendingUpdates() ([]models.PendingUpdate, error) {
	rows, err := s.db.Query(`SELECT update_id, contact_id, update_type, payload, created_at,
        retry_count, status, last_error, retry_at
        FROM pending_updates ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPendingUpdates(rows)
}

func scanPendingUpdates(rows *sql.Rows) ([]models.PendingUpdate, error) {
	var out []models.PendingUpdate
	for rows.Next() {
		var u models.PendingUpdate
		var updateType, status string
		var lastError sql.NullString
		var retryAt sql.NullInt64
		if err := rows.Scan(&u.UpdateID, &u.ContactID, &updateType, &u.Payload,
			&u.CreatedAt, &u.RetryCount, &status, &lastError, &retryAt); err != nil {
			return nil, err
		}
		u.Type = models.UpdateType(updateType)
		u.Status = models.UpdateStatus(status)
		u.LastError = lastError.String
		u.RetryAt = retryAt.Int64
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) DeletePendingUpdate(updateID string) error {
	_, err := s.db.Exec(`DELETE FROM pending_updates WHERE update_id = ?`, updateID)
	return err
}

func (s *Store) CountPendingUpdates() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_updates`).Scan(&count)
	return count, err
}
