package relay

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vauchi/go-core/pkg/models"
)

// BlobStore holds opaque ciphertext deposits per recipient, FIFO. The relay
// never inspects blob contents.
type BlobStore interface {
	Enqueue(blob models.StoredBlob) error
	PendingFor(recipientID string) ([]models.StoredBlob, error)
	Delete(blobID string) (bool, error)
	CleanupExpired(ttl time.Duration) (int, error)
	Count() (int, error)
	Close() error
}

// MemoryBlobStore keeps blobs in per-recipient FIFO queues.
type MemoryBlobStore struct {
	mu     sync.RWMutex
	queues map[string][]models.StoredBlob
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{queues: make(map[string][]models.StoredBlob)}
}

func (s *MemoryBlobStore) Enqueue(blob models.StoredBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[blob.RecipientID] = append(s.queues[blob.RecipientID], blob)
	return nil
}

func (s *MemoryBlobStore) PendingFor(recipientID string) ([]models.StoredBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StoredBlob(nil), s.queues[recipientID]...), nil
}

func (s *MemoryBlobStore) Delete(blobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for recipient, queue := range s.queues {
		for i, blob := range queue {
			if blob.BlobID == blobID {
				s.queues[recipient] = append(queue[:i], queue[i+1:]...)
				if len(s.queues[recipient]) == 0 {
					delete(s.queues, recipient)
				}
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryBlobStore) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for recipient, queue := range s.queues {
		kept := queue[:0]
		for _, blob := range queue {
			if blob.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, blob)
		}
		if len(kept) == 0 {
			delete(s.queues, recipient)
		} else {
			s.queues[recipient] = kept
		}
	}
	return removed, nil
}

func (s *MemoryBlobStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, queue := range s.queues {
		total += len(queue)
	}
	return total, nil
}

func (s *MemoryBlobStore) Close() error { return nil }

// SQLiteBlobStore persists blobs across relay restarts.
type SQLiteBlobStore struct {
	db *sql.DB
}

const blobSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    blob_id      TEXT PRIMARY KEY,
    sender_id    TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    data         BLOB NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blobs_recipient ON blobs(recipient_id, created_at);
`

func OpenSQLiteBlobStore(path string) (*SQLiteBlobStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(blobSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBlobStore{db: db}, nil
}

func (s *SQLiteBlobStore) Enqueue(blob models.StoredBlob) error {
	_, err := s.db.Exec(`INSERT INTO blobs (blob_id, sender_id, recipient_id, data, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		blob.BlobID, blob.SenderID, blob.RecipientID, blob.Data, blob.CreatedAt.UTC().Unix())
	return err
}

func (s *SQLiteBlobStore) PendingFor(recipientID string) ([]models.StoredBlob, error) {
	rows, err := s.db.Query(`SELECT blob_id, sender_id, recipient_id, data, created_at
        FROM blobs WHERE recipient_id = ? ORDER BY created_at, blob_id`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StoredBlob
	for rows.Next() {
		var blob models.StoredBlob
		var createdAt int64
		if err := rows.Scan(&blob.BlobID, &blob.SenderID, &blob.RecipientID, &blob.Data, &createdAt); err != nil {
			return nil, err
		}
		blob.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, blob)
	}
	return out, rows.Err()
}

func (s *SQLiteBlobStore) Delete(blobID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM blobs WHERE blob_id = ?`, blobID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteBlobStore) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl).UTC().Unix()
	res, err := s.db.Exec(`DELETE FROM blobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteBlobStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM blobs`).Scan(&count)
	return count, err
}

func (s *SQLiteBlobStore) Close() error { return s.db.Close() }
