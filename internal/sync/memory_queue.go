package sync

import (
	"sort"
	stdsync "sync"

	"vauchi/go-core/pkg/models"
)

// MemoryQueue is an in-memory Queue for tests and ephemeral sessions.
type MemoryQueue struct {
	mu      stdsync.RWMutex
	updates map[string]models.PendingUpdate
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{updates: make(map[string]models.PendingUpdate)}
}

func (q *MemoryQueue) SavePendingUpdate(u models.PendingUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updates[u.UpdateID] = u
	return nil
}

func (q *MemoryQueue) PendingUpdates(contactID string) ([]models.PendingUpdate, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []models.PendingUpdate
	for _, u := range q.updates {
		if u.ContactID == contactID {
			out = append(out, u)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (q *MemoryQueue) AllPendingUpdates() ([]models.PendingUpdate, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.PendingUpdate, 0, len(q.updates))
	for _, u := range q.updates {
		out = append(out, u)
	}
	sortByCreatedAt(out)
	return out, nil
}

func (q *MemoryQueue) DeletePendingUpdate(updateID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.updates, updateID)
	return nil
}

func (q *MemoryQueue) CountPendingUpdates() (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.updates), nil
}

func sortByCreatedAt(updates []models.PendingUpdate) {
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].CreatedAt < updates[j].CreatedAt
	})
}
