package sync

import (
	"encoding/json"
	"testing"
	"time"

	"vauchi/go-core/internal/card"
	"vauchi/go-core/internal/identity"
	"vauchi/go-core/pkg/models"
)

func testManager(t *testing.T) (*Manager, *identity.Identity) {
	t.Helper()
	owner, err := identity.Create("Owner")
	if err != nil {
		t.Fatalf("identity failed: %v", err)
	}
	return NewManager(NewMemoryQueue(), owner, 0), owner
}

func contactWith(id string, rules models.VisibilityRules) models.Contact {
	return models.Contact{ID: id, Visibility: rules}
}

func TestQueueCardUpdateNoChanges(t *testing.T) {
	m, _ := testManager(t)
	c, _ := card.New("Owner")
	if _, err := m.QueueCardUpdate(contactWith("bob", models.VisibilityRules{}), c, c); err != ErrNoChanges {
		t.Fatalf("expected ErrNoChanges, got %v", err)
	}
}

func TestQueueCardUpdateFiltersVisibility(t *testing.T) {
	m, owner := testManager(t)

	old, _ := card.New("Owner")
	updated := card.Clone(old)
	email, _ := card.NewField(models.FieldEmail, "work", "x@y.co")
	phone, _ := card.NewField(models.FieldPhone, "mobile", "+15551234567")
	if err := card.AddField(&updated, email); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := card.AddField(&updated, phone); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	bob := contactWith("bob", models.VisibilityRules{Rules: map[string]models.VisibilityRule{
		email.ID: {Mode: models.VisibilityNobody},
	}})
	carol := contactWith("carol", models.VisibilityRules{})

	bobUpdate, err := m.QueueCardUpdate(bob, old, updated)
	if err != nil {
		t.Fatalf("queue for bob failed: %v", err)
	}
	carolUpdate, err := m.QueueCardUpdate(carol, old, updated)
	if err != nil {
		t.Fatalf("queue for carol failed: %v", err)
	}

	var bobDelta, carolDelta card.CardDelta
	if err := json.Unmarshal(bobUpdate.Payload, &bobDelta); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := json.Unmarshal(carolUpdate.Payload, &carolDelta); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(bobDelta.Changes) != 1 {
		t.Fatalf("bob must only see the phone change, got %d changes", len(bobDelta.Changes))
	}
	if len(carolDelta.Changes) != 2 {
		t.Fatalf("carol must see both changes, got %d", len(carolDelta.Changes))
	}
	if !bobDelta.Verify(owner.SigningPublicKey) {
		t.Fatal("queued delta must carry a valid owner signature")
	}
}

func TestQueueCardUpdateAllHiddenIsNoChanges(t *testing.T) {
	m, _ := testManager(t)
	old, _ := card.New("Owner")
	updated := card.Clone(old)
	email, _ := card.NewField(models.FieldEmail, "work", "x@y.co")
	if err := card.AddField(&updated, email); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	bob := contactWith("bob", models.VisibilityRules{Rules: map[string]models.VisibilityRule{
		email.ID: {Mode: models.VisibilityNobody},
	}})
	if _, err := m.QueueCardUpdate(bob, old, updated); err != ErrNoChanges {
		t.Fatalf("fully filtered delta must not be queued, got %v", err)
	}
}

func TestQueueBlockedOrHiddenRecipient(t *testing.T) {
	m, _ := testManager(t)
	old, _ := card.New("Owner")
	updated := card.Clone(old)
	updated.DisplayName = "Renamed"

	blocked := models.Contact{ID: "bob", Blocked: true}
	if _, err := m.QueueCardUpdate(blocked, old, updated); err != ErrRecipientBlocked {
		t.Fatalf("blocked recipient must be refused, got %v", err)
	}
	hidden := models.Contact{ID: "bob", Hidden: true}
	if _, err := m.QueueCardUpdate(hidden, old, updated); err != ErrRecipientBlocked {
		t.Fatalf("hidden recipient must be refused, got %v", err)
	}
}

func TestQueueBackpressure(t *testing.T) {
	owner, _ := identity.Create("Owner")
	m := NewManager(NewMemoryQueue(), owner, 2)
	if _, err := m.QueueVisibilityChange("bob", []string{"f1"}); err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if _, err := m.QueueVisibilityChange("bob", []string{"f2"}); err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if _, err := m.QueueVisibilityChange("bob", []string{"f3"}); err != ErrTooManyPending {
		t.Fatalf("expected ErrTooManyPending, got %v", err)
	}
}

func TestCoalesceCardDeltas(t *testing.T) {
	m, _ := testManager(t)

	base, _ := card.New("Owner")
	email, _ := card.NewField(models.FieldEmail, "work", "v0@x.co")
	if err := card.AddField(&base, email); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	step1 := card.Clone(base)
	if err := card.UpdateFieldValue(&step1, email.ID, "v1@x.co"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	step2 := card.Clone(step1)
	if err := card.UpdateFieldValue(&step2, email.ID, "v2@x.co"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	bob := contactWith("bob", models.VisibilityRules{})
	first, err := m.QueueCardUpdate(bob, base, step1)
	if err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if _, err := m.QueueCardUpdate(bob, step1, step2); err != nil {
		t.Fatalf("queue failed: %v", err)
	}

	if err := m.CoalesceUpdates("bob"); err != nil {
		t.Fatalf("coalesce failed: %v", err)
	}

	pending, _ := m.queue.PendingUpdates("bob")
	if len(pending) != 1 {
		t.Fatalf("expected 1 coalesced entry, got %d", len(pending))
	}
	if pending[0].UpdateID != first.UpdateID || pending[0].CreatedAt != first.CreatedAt {
		t.Fatal("coalesced entry must keep the earliest created_at")
	}
	var merged card.CardDelta
	if err := json.Unmarshal(pending[0].Payload, &merged); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(merged.Changes) != 1 || merged.Changes[0].NewValue != "v2@x.co" {
		t.Fatalf("repeated modified must collapse to last value, got %+v", merged.Changes)
	}
}

func TestCoalesceVisibilityChanges(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.QueueVisibilityChange("bob", []string{"f1", "f2"}); err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if _, err := m.QueueVisibilityChange("bob", []string{"f2", "f3"}); err != nil {
		t.Fatalf("queue failed: %v", err)
	}
	if err := m.CoalesceUpdates("bob"); err != nil {
		t.Fatalf("coalesce failed: %v", err)
	}
	pending, _ := m.queue.PendingUpdates("bob")
	if len(pending) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(pending))
	}
	var vc VisibilityChange
	if err := json.Unmarshal(pending[0].Payload, &vc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(vc.FieldIDs) != 3 {
		t.Fatalf("expected union of 3 field ids, got %v", vc.FieldIDs)
	}
}

func TestAckOrderingPerRecipient(t *testing.T) {
	m, _ := testManager(t)
	var ids []string
	for i := 0; i < 5; i++ {
		u, err := m.QueueVisibilityChange("bob", []string{"f"})
		if err != nil {
			t.Fatalf("queue failed: %v", err)
		}
		ids = append(ids, u.UpdateID)
	}

	// Delivery always consumes the head; acked order equals created order.
	var acked []string
	for {
		next, ok, err := m.NextPending("bob")
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if !ok {
			break
		}
		if err := m.MarkDelivered(next.UpdateID); err != nil {
			t.Fatalf("ack failed: %v", err)
		}
		acked = append(acked, next.UpdateID)
	}
	if len(acked) != len(ids) {
		t.Fatalf("acked %d of %d", len(acked), len(ids))
	}
	for i := range ids {
		if acked[i] != ids[i] {
			t.Fatalf("ack order broken at %d", i)
		}
	}
}

func TestMarkDeliveredUpdatesStatus(t *testing.T) {
	m, _ := testManager(t)
	u, _ := m.QueueVisibilityChange("bob", []string{"f"})

	st, _ := m.SyncStatus("bob")
	if st.Kind != StatusPending || st.QueuedCount != 1 {
		t.Fatalf("expected pending status, got %+v", st)
	}
	if err := m.MarkDelivered(u.UpdateID); err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	st, _ = m.SyncStatus("bob")
	if st.Kind != StatusSynced || st.LastSync.IsZero() {
		t.Fatalf("expected synced status with last_sync, got %+v", st)
	}
}

func TestMarkFailedSchedulesRetry(t *testing.T) {
	m, _ := testManager(t)
	u, _ := m.QueueVisibilityChange("bob", []string{"f"})
	before := time.Now().UTC().Unix()
	if err := m.MarkFailed(u.UpdateID, "relay unreachable", 3); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	pending, _ := m.queue.PendingUpdates("bob")
	got := pending[0]
	if got.Status != models.UpdateFailed || got.LastError != "relay unreachable" {
		t.Fatalf("failure not recorded: %+v", got)
	}
	if got.RetryAt < before+8 || got.RetryAt > before+9 {
		t.Fatalf("attempt 3 must schedule ~8s out, got %d (now %d)", got.RetryAt, before)
	}
	st, _ := m.SyncStatus("bob")
	if st.Kind != StatusFailed {
		t.Fatalf("expected failed status, got %+v", st)
	}
}

func TestMarkDeliveredUnknownUpdate(t *testing.T) {
	m, _ := testManager(t)
	if err := m.MarkDelivered("nope"); err != ErrUpdateNotFound {
		t.Fatalf("expected ErrUpdateNotFound, got %v", err)
	}
}
