package sync

import (
	"encoding/json"
	"errors"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"vauchi/go-core/internal/card"
	"vauchi/go-core/pkg/models"
)

const (
	// DefaultMaxPendingUpdates bounds the outbound queue per store.
	DefaultMaxPendingUpdates = 50

	// maxRetryBackoffSecs caps the failure reschedule delay.
	maxRetryBackoffSecs = 3600
)

var (
	ErrNoChanges        = errors.New("update contains no visible changes")
	ErrTooManyPending   = errors.New("pending update queue is full")
	ErrUpdateNotFound   = errors.New("pending update not found")
	ErrRecipientBlocked = errors.New("recipient is blocked or hidden")
)

// Queue persists pending updates in created_at order. The encrypted store
// implements it; tests use MemoryQueue.
type Queue interface {
	SavePendingUpdate(u models.PendingUpdate) error
	PendingUpdates(contactID string) ([]models.PendingUpdate, error)
	AllPendingUpdates() ([]models.PendingUpdate, error)
	DeletePendingUpdate(updateID string) error
	CountPendingUpdates() (int, error)
}

// StatusKind is the per-contact sync state discriminator.
type StatusKind string

const (
	StatusSynced  StatusKind = "synced"
	StatusPending StatusKind = "pending"
	StatusFailed  StatusKind = "failed"
)

// Status is the sync state of one contact.
type Status struct {
	Kind        StatusKind
	LastSync    time.Time
	QueuedCount int
	Error       string
}

// VisibilityChange is the payload of a visibility_change update.
type VisibilityChange struct {
	FieldIDs []string `json:"field_ids"`
}

// Manager computes per-recipient deltas, applies visibility filtering, and
// maintains the outbound queue with its ordering guarantee: per recipient,
// acknowledgments remove entries in created_at order even after coalescing.
type Manager struct {
	mu     stdsync.Mutex
	queue  Queue
	signer card.Signer

	maxPending int
	lastSync   map[string]time.Time
	lastError  map[string]string
	now        func() time.Time
}

// NewManager builds a sync manager over a queue. signer signs outbound
// deltas with the owner identity.
func NewManager(queue Queue, signer card.Signer, maxPending int) *Manager {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingUpdates
	}
	return &Manager{
		queue:      queue,
		signer:     signer,
		maxPending: maxPending,
		lastSync:   make(map[string]time.Time),
		lastError:  make(map[string]string),
		now:        time.Now,
	}
}

// QueueCardUpdate computes the old→new delta, filters it through the
// owner's visibility rules for the recipient, and enqueues the signed
// result. An empty filtered delta is an error, not a queue entry.
func (m *Manager) QueueCardUpdate(recipient models.Contact, oldCard, newCard models.ContactCard) (models.PendingUpdate, error) {
	if recipient.Blocked || recipient.Hidden {
		return models.PendingUpdate{}, ErrRecipientBlocked
	}
	delta := card.Compute(oldCard, newCard)
	if delta.IsEmpty() {
		return models.PendingUpdate{}, ErrNoChanges
	}
	filtered := delta.FilterForContact(recipient.ID, recipient.Visibility)
	if filtered.IsEmpty() {
		return models.PendingUpdate{}, ErrNoChanges
	}
	if m.signer != nil {
		filtered.Sign(m.signer)
	}
	payload, err := json.Marshal(filtered)
	if err != nil {
		return models.PendingUpdate{}, err
	}
	return m.enqueue(recipient.ID, models.UpdateCardDelta, payload)
}

// QueueVisibilityChange enqueues an explicit visibility event for the
// recipient.
func (m *Manager) QueueVisibilityChange(recipientID string, fieldIDs []string) (models.PendingUpdate, error) {
	payload, err := json.Marshal(VisibilityChange{FieldIDs: fieldIDs})
	if err != nil {
		return models.PendingUpdate{}, err
	}
	return m.enqueue(recipientID, models.UpdateVisibilityChange, payload)
}

func (m *Manager) enqueue(recipientID string, updateType models.UpdateType, payload []byte) (models.PendingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, err := m.queue.CountPendingUpdates()
	if err != nil {
		return models.PendingUpdate{}, err
	}
	if count >= m.maxPending {
		return models.PendingUpdate{}, ErrTooManyPending
	}
	update := models.PendingUpdate{
		UpdateID:  uuid.NewString(),
		ContactID: recipientID,
		Type:      updateType,
		Payload:   payload,
		CreatedAt: m.now().UTC().UnixNano(),
		Status:    models.UpdatePending,
	}
	if err := m.queue.SavePendingUpdate(update); err != nil {
		return models.PendingUpdate{}, err
	}
	return update, nil
}

// CoalesceUpdates merges queued updates of the same type for a recipient:
// change lists concatenate in queue order, repeated Modified changes on one
// field collapse to the last value, and the merged entry keeps the earliest
// created_at. Later entries are removed.
func (m *Manager) CoalesceUpdates(recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.queue.PendingUpdates(recipientID)
	if err != nil {
		return err
	}
	if err := m.coalesceCardDeltas(pending); err != nil {
		return err
	}
	return m.coalesceVisibility(pending)
}

func (m *Manager) coalesceCardDeltas(pending []models.PendingUpdate) error {
	var entries []models.PendingUpdate
	var deltas []card.CardDelta
	for _, u := range pending {
		if u.Type != models.UpdateCardDelta {
			continue
		}
		var d card.CardDelta
		if err := json.Unmarshal(u.Payload, &d); err != nil {
			return err
		}
		entries = append(entries, u)
		deltas = append(deltas, d)
	}
	if len(entries) < 2 {
		return nil
	}

	merged := card.Coalesce(deltas...)
	if m.signer != nil {
		merged.Sign(m.signer)
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return err
	}

	head := entries[0]
	head.Payload = payload
	if err := m.queue.SavePendingUpdate(head); err != nil {
		return err
	}
	for _, u := range entries[1:] {
		if err := m.queue.DeletePendingUpdate(u.UpdateID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) coalesceVisibility(pending []models.PendingUpdate) error {
	var entries []models.PendingUpdate
	seen := map[string]bool{}
	var fieldIDs []string
	for _, u := range pending {
		if u.Type != models.UpdateVisibilityChange {
			continue
		}
		var vc VisibilityChange
		if err := json.Unmarshal(u.Payload, &vc); err != nil {
			return err
		}
		entries = append(entries, u)
		for _, id := range vc.FieldIDs {
			if !seen[id] {
				seen[id] = true
				fieldIDs = append(fieldIDs, id)
			}
		}
	}
	if len(entries) < 2 {
		return nil
	}

	payload, err := json.Marshal(VisibilityChange{FieldIDs: fieldIDs})
	if err != nil {
		return err
	}
	head := entries[0]
	head.Payload = payload
	if err := m.queue.SavePendingUpdate(head); err != nil {
		return err
	}
	for _, u := range entries[1:] {
		if err := m.queue.DeletePendingUpdate(u.UpdateID); err != nil {
			return err
		}
	}
	return nil
}

// NextPending returns the oldest queued update for a recipient.
func (m *Manager) NextPending(recipientID string) (models.PendingUpdate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, err := m.queue.PendingUpdates(recipientID)
	if err != nil {
		return models.PendingUpdate{}, false, err
	}
	if len(pending) == 0 {
		return models.PendingUpdate{}, false, nil
	}
	return pending[0], true, nil
}

// MarkDelivered removes an acknowledged update and refreshes the contact's
// last-sync time.
func (m *Manager) MarkDelivered(updateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok, err := m.findUpdate(updateID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUpdateNotFound
	}
	if err := m.queue.DeletePendingUpdate(updateID); err != nil {
		return err
	}
	m.lastSync[u.ContactID] = m.now().UTC()
	delete(m.lastError, u.ContactID)
	return nil
}

// MarkFailed records a delivery failure and schedules a retry with
// exponential backoff.
func (m *Manager) MarkFailed(updateID, errMsg string, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok, err := m.findUpdate(updateID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUpdateNotFound
	}
	backoff := int64(1) << uint(attempt)
	if backoff > maxRetryBackoffSecs {
		backoff = maxRetryBackoffSecs
	}
	u.Status = models.UpdateFailed
	u.LastError = errMsg
	u.RetryCount = attempt
	u.RetryAt = m.now().UTC().Unix() + backoff
	if err := m.queue.SavePendingUpdate(u); err != nil {
		return err
	}
	m.lastError[u.ContactID] = errMsg
	return nil
}

// SyncStatus reports the contact's current sync state.
func (m *Manager) SyncStatus(contactID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, err := m.queue.PendingUpdates(contactID)
	if err != nil {
		return Status{}, err
	}
	if errMsg, ok := m.lastError[contactID]; ok {
		return Status{Kind: StatusFailed, Error: errMsg, QueuedCount: len(pending)}, nil
	}
	if len(pending) > 0 {
		return Status{Kind: StatusPending, QueuedCount: len(pending)}, nil
	}
	return Status{Kind: StatusSynced, LastSync: m.lastSync[contactID]}, nil
}

func (m *Manager) findUpdate(updateID string) (models.PendingUpdate, bool, error) {
	all, err := m.queue.AllPendingUpdates()
	if err != nil {
		return models.PendingUpdate{}, false, err
	}
	for _, u := range all {
		if u.UpdateID == updateID {
			return u, true, nil
		}
	}
	return models.PendingUpdate{}, false, nil
}
