package retry

import (
	"errors"
	"time"

	"vauchi/go-core/pkg/models"
)

const (
	DefaultMaxAttempts    = 10
	DefaultMaxBackoffSecs = 3600
)

var ErrEntryExists = errors.New("retry entry already exists")

// BackoffOffset returns the delay in seconds between enqueue and the
// attempt-th retry. Delays between consecutive attempts double (2s, 4s,
// 8s, ...) and the cumulative offset is capped at the maximum backoff, so
// an entry created at t sits no later than t + max_backoff.
func BackoffOffset(attempt int) int64 {
	if attempt <= 0 {
		return 0
	}
	if attempt >= 12 {
		return DefaultMaxBackoffSecs
	}
	offset := int64(1)<<uint(attempt+1) - 2
	if offset > DefaultMaxBackoffSecs {
		return DefaultMaxBackoffSecs
	}
	return offset
}

// NextRetryTime schedules the attempt-th retry relative to entry creation.
func NextRetryTime(createdAt int64, attempt int) int64 {
	return createdAt + BackoffOffset(attempt)
}

// NewEntry builds a retry entry for a failed delivery.
func NewEntry(messageID, recipientID string, payload []byte, now time.Time) models.RetryEntry {
	createdAt := now.UTC().Unix()
	return models.RetryEntry{
		MessageID:   messageID,
		RecipientID: recipientID,
		Payload:     append([]byte(nil), payload...),
		Attempt:     0,
		NextRetry:   createdAt,
		CreatedAt:   createdAt,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Store is the persistence surface the scheduler drives. The encrypted
// store implements it.
type Store interface {
	CreateRetryEntry(entry models.RetryEntry) error
	DueRetries(now int64) ([]models.RetryEntry, error)
	// IncrementRetryAttempt bumps attempt by one and sets next_retry.
	// Idempotent by message ID: a missing entry reports false.
	IncrementRetryAttempt(messageID string, nextRetry int64) (bool, error)
	DeleteRetryEntry(messageID string) (bool, error)
}

// SendFunc attempts redelivery of one payload. A nil return removes the
// entry; an error reschedules it.
type SendFunc func(entry models.RetryEntry) error

// Scheduler drains due retry entries on each tick. It is safe to cancel
// between ticks; each tick is a plain synchronous pass.
type Scheduler struct {
	store Store
	send  SendFunc
	now   func() time.Time
}

func NewScheduler(store Store, send SendFunc) *Scheduler {
	return &Scheduler{store: store, send: send, now: time.Now}
}

// Tick processes every entry due at the current time. Spent entries
// (attempt >= max_attempts) are dropped without another send.
func (s *Scheduler) Tick() error {
	now := s.now().UTC().Unix()
	due, err := s.store.DueRetries(now)
	if err != nil {
		return err
	}
	for _, entry := range due {
		if entry.MaxAttemptsExceeded() {
			if _, err := s.store.DeleteRetryEntry(entry.MessageID); err != nil {
				return err
			}
			continue
		}
		if err := s.send(entry); err != nil {
			next := NextRetryTime(entry.CreatedAt, entry.Attempt+1)
			if _, err := s.store.IncrementRetryAttempt(entry.MessageID, next); err != nil {
				return err
			}
			continue
		}
		if _, err := s.store.DeleteRetryEntry(entry.MessageID); err != nil {
			return err
		}
	}
	return nil
}

// Run ticks on the given interval until the stop channel closes.
func (s *Scheduler) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = s.Tick()
		}
	}
}
