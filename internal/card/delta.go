package card

import (
	"crypto/ed25519"
	"encoding/json"
	"time"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/pkg/models"
)

// ChangeKind discriminates the variants of a FieldChange.
type ChangeKind string

const (
	ChangeAdded       ChangeKind = "added"
	ChangeModified    ChangeKind = "modified"
	ChangeRemoved     ChangeKind = "removed"
	ChangeDisplayName ChangeKind = "display_name_changed"
)

// FieldChange is a single edit in a card delta.
type FieldChange struct {
	Kind     ChangeKind    `json:"kind"`
	Field    *models.Field `json:"field,omitempty"`
	FieldID  string        `json:"field_id,omitempty"`
	NewValue string        `json:"new_value,omitempty"`
	NewName  string        `json:"new_name,omitempty"`
}

// targetFieldID returns the field a change is scoped to, or "" for
// display-name changes.
func (c FieldChange) targetFieldID() string {
	if c.Kind == ChangeAdded && c.Field != nil {
		return c.Field.ID
	}
	return c.FieldID
}

// CardDelta is a minimal, signed edit between two card states.
type CardDelta struct {
	Version   uint32        `json:"version"`
	Timestamp int64         `json:"timestamp"`
	Changes   []FieldChange `json:"changes"`
	Signature []byte        `json:"signature,omitempty"`
}

// Compute produces the delta that transforms old into new. Changes are
// emitted in a deterministic order: display name first, then modifications
// and removals in old-card field order, then additions in new-card order.
func Compute(old, new models.ContactCard) CardDelta {
	changes := []FieldChange{}

	if old.DisplayName != new.DisplayName {
		changes = append(changes, FieldChange{Kind: ChangeDisplayName, NewName: new.DisplayName})
	}

	newByID := make(map[string]models.Field, len(new.Fields))
	for _, f := range new.Fields {
		newByID[f.ID] = f
	}
	oldIDs := make(map[string]struct{}, len(old.Fields))
	for _, f := range old.Fields {
		oldIDs[f.ID] = struct{}{}
		updated, ok := newByID[f.ID]
		if !ok {
			changes = append(changes, FieldChange{Kind: ChangeRemoved, FieldID: f.ID})
			continue
		}
		if updated.Value != f.Value {
			changes = append(changes, FieldChange{Kind: ChangeModified, FieldID: f.ID, NewValue: updated.Value})
		}
	}
	for _, f := range new.Fields {
		if _, ok := oldIDs[f.ID]; !ok {
			added := f
			changes = append(changes, FieldChange{Kind: ChangeAdded, Field: &added})
		}
	}

	return CardDelta{
		Version:   1,
		Timestamp: time.Now().UTC().Unix(),
		Changes:   changes,
	}
}

// Apply mutates the card according to the delta, in listed order. Removing
// an unknown field is tolerated; modifying an unknown field fails.
func (d *CardDelta) Apply(card *models.ContactCard) error {
	for _, change := range d.Changes {
		switch change.Kind {
		case ChangeDisplayName:
			if err := SetDisplayName(card, change.NewName); err != nil {
				return err
			}
		case ChangeAdded:
			if change.Field == nil {
				return ErrFieldNotFound
			}
			if err := AddField(card, *change.Field); err != nil {
				return err
			}
		case ChangeModified:
			if err := UpdateFieldValue(card, change.FieldID, change.NewValue); err != nil {
				return err
			}
		case ChangeRemoved:
			if err := RemoveField(card, change.FieldID); err != nil && err != ErrFieldNotFound {
				return err
			}
		}
	}
	return nil
}

// IsEmpty reports whether the delta carries no changes.
func (d *CardDelta) IsEmpty() bool {
	return len(d.Changes) == 0
}

type signableDelta struct {
	Version   uint32        `json:"version"`
	Timestamp int64         `json:"timestamp"`
	Changes   []FieldChange `json:"changes"`
}

func (d *CardDelta) signableBytes() []byte {
	raw, _ := json.Marshal(signableDelta{Version: d.Version, Timestamp: d.Timestamp, Changes: d.Changes})
	return raw
}

// Signer signs delta bytes; the identity type satisfies it.
type Signer interface {
	Sign(message []byte) []byte
}

// Sign attaches the owner's signature over the stable serialization
// excluding the signature field.
func (d *CardDelta) Sign(signer Signer) {
	d.Signature = signer.Sign(d.signableBytes())
}

// Verify checks the delta signature under the owner's signing key.
func (d *CardDelta) Verify(pub ed25519.PublicKey) bool {
	return crypto.Verify(pub, d.signableBytes(), d.Signature)
}

// FilterForContact drops field-scoped changes the contact may not see under
// the owner's visibility rules. Display name changes are always retained.
func (d *CardDelta) FilterForContact(contactID string, rules models.VisibilityRules) CardDelta {
	filtered := make([]FieldChange, 0, len(d.Changes))
	for _, change := range d.Changes {
		if change.Kind == ChangeDisplayName || rules.CanSee(change.targetFieldID(), contactID) {
			filtered = append(filtered, change)
		}
	}
	return CardDelta{
		Version:   d.Version,
		Timestamp: d.Timestamp,
		Changes:   filtered,
		Signature: d.Signature,
	}
}

// Coalesce merges deltas in queue order into one. Repeated Modified changes
// on the same field collapse to the last value; everything else keeps its
// relative order. The result carries the earliest timestamp and no
// signature (callers re-sign).
func Coalesce(deltas ...CardDelta) CardDelta {
	if len(deltas) == 0 {
		return CardDelta{Version: 1}
	}
	merged := make([]FieldChange, 0)
	for _, d := range deltas {
		merged = append(merged, d.Changes...)
	}

	// Collapse repeated Modified on the same field to the final value,
	// keeping the position of the first occurrence.
	lastValue := make(map[string]string)
	for _, c := range merged {
		if c.Kind == ChangeModified {
			lastValue[c.FieldID] = c.NewValue
		}
	}
	out := make([]FieldChange, 0, len(merged))
	seenModified := make(map[string]bool)
	for _, c := range merged {
		if c.Kind == ChangeModified {
			if seenModified[c.FieldID] {
				continue
			}
			seenModified[c.FieldID] = true
			c.NewValue = lastValue[c.FieldID]
		}
		out = append(out, c)
	}

	earliest := deltas[0].Timestamp
	for _, d := range deltas[1:] {
		if d.Timestamp < earliest {
			earliest = d.Timestamp
		}
	}
	return CardDelta{Version: deltas[0].Version, Timestamp: earliest, Changes: out}
}
