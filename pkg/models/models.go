package models

import "time"

// FieldType classifies a contact card field.
type FieldType string

const (
	FieldPhone   FieldType = "phone"
	FieldEmail   FieldType = "email"
	FieldSocial  FieldType = "social"
	FieldAddress FieldType = "address"
	FieldWebsite FieldType = "website"
	FieldCustom  FieldType = "custom"
)

// Field is a single contact card entry (phone, email, etc.).
type Field struct {
	ID        string    `json:"id"`
	Type      FieldType `json:"type"`
	Label     string    `json:"label"`
	Value     string    `json:"value"`
	UpdatedAt int64     `json:"updated_at"`
}

// ContactCard is a user's publishable profile.
type ContactCard struct {
	CardID      string  `json:"card_id"`
	DisplayName string  `json:"display_name"`
	Fields      []Field `json:"fields"`
	Avatar      []byte  `json:"avatar,omitempty"`
}

// Device is one registered member of an identity.
type Device struct {
	DeviceID          string `json:"device_id"`
	Index             int    `json:"index"`
	Name              string `json:"name"`
	ExchangePublicKey []byte `json:"exchange_public_key"`
	Active            bool   `json:"active"`
	JoinedAt          int64  `json:"joined_at"`
}

// DeviceRegistry is the signed ledger of an identity's device set.
type DeviceRegistry struct {
	Version   uint64   `json:"version"`
	Devices   []Device `json:"devices"`
	Signature []byte   `json:"signature"`
}

// ActiveCount returns the number of active devices in the registry.
func (r *DeviceRegistry) ActiveCount() int {
	n := 0
	for _, d := range r.Devices {
		if d.Active {
			n++
		}
	}
	return n
}

// VisibilityMode selects who may observe a field.
type VisibilityMode string

const (
	VisibilityEveryone VisibilityMode = "everyone"
	VisibilityNobody   VisibilityMode = "nobody"
	VisibilityContacts VisibilityMode = "contacts"
)

// VisibilityRule scopes one field to an audience.
type VisibilityRule struct {
	Mode     VisibilityMode `json:"mode"`
	Contacts []string       `json:"contacts,omitempty"`
}

// VisibilityRules maps field IDs to audience rules. Missing keys mean
// everyone.
type VisibilityRules struct {
	Rules map[string]VisibilityRule `json:"rules,omitempty"`
}

// CanSee reports whether contactID may observe the field.
func (v VisibilityRules) CanSee(fieldID, contactID string) bool {
	rule, ok := v.Rules[fieldID]
	if !ok {
		return true
	}
	switch rule.Mode {
	case VisibilityEveryone:
		return true
	case VisibilityNobody:
		return false
	case VisibilityContacts:
		for _, id := range rule.Contacts {
			if id == contactID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Contact is a peer obtained via pairing. ID is the hex encoding of the
// peer's Ed25519 signing public key and is stable across card edits.
type Contact struct {
	ID               string          `json:"id"`
	SigningPublicKey []byte          `json:"signing_public_key"`
	Card             ContactCard     `json:"card"`
	SharedSecret     []byte          `json:"shared_secret"`
	ExchangedAt      time.Time       `json:"exchanged_at"`
	Verified         bool            `json:"verified"`
	Hidden           bool            `json:"hidden"`
	Blocked          bool            `json:"blocked"`
	Visibility       VisibilityRules `json:"visibility"`
}

// UpdateType tags an outbound queued event.
type UpdateType string

const (
	UpdateCardDelta        UpdateType = "card_delta"
	UpdateVisibilityChange UpdateType = "visibility_change"
)

// UpdateStatus is the lifecycle state of a pending update.
type UpdateStatus string

const (
	UpdatePending UpdateStatus = "pending"
	UpdateSending UpdateStatus = "sending"
	UpdateFailed  UpdateStatus = "failed"
)

// PendingUpdate is an outbound queued event, ordered globally by CreatedAt.
type PendingUpdate struct {
	UpdateID   string       `json:"update_id"`
	ContactID  string       `json:"contact_id"`
	Type       UpdateType   `json:"type"`
	Payload    []byte       `json:"payload"`
	CreatedAt  int64        `json:"created_at"`
	RetryCount int          `json:"retry_count"`
	Status     UpdateStatus `json:"status"`
	LastError  string       `json:"last_error,omitempty"`
	RetryAt    int64        `json:"retry_at,omitempty"`
}

// DeliveryStatus tracks per-recipient and per-device delivery progress.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryStored    DeliveryStatus = "stored"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryExpired   DeliveryStatus = "expired"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord aggregates delivery status per recipient.
type DeliveryRecord struct {
	MessageID   string         `json:"message_id"`
	RecipientID string         `json:"recipient_id"`
	Status      DeliveryStatus `json:"status"`
	UpdatedAt   int64          `json:"updated_at"`
}

// DeviceDeliveryRecord tracks delivery to one device of a recipient.
type DeviceDeliveryRecord struct {
	MessageID   string         `json:"message_id"`
	DeviceID    string         `json:"device_id"`
	RecipientID string         `json:"recipient_id"`
	Status      DeliveryStatus `json:"status"`
	UpdatedAt   int64          `json:"updated_at"`
}

// DeliverySummary reports X-of-K fan-out progress for one message.
type DeliverySummary struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
}

// IsFullyDelivered reports whether every device acked the message.
func (s DeliverySummary) IsFullyDelivered() bool {
	return s.Total > 0 && s.Delivered == s.Total
}

// Progress returns the delivered fraction in [0, 1].
func (s DeliverySummary) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Total)
}

// RetryEntry is a failed delivery awaiting retry.
type RetryEntry struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	NextRetry   int64  `json:"next_retry"`
	CreatedAt   int64  `json:"created_at"`
	MaxAttempts int    `json:"max_attempts"`
}

// MaxAttemptsExceeded reports whether the entry is past its retry budget.
// True already at attempt == max_attempts, so a spent entry survives the
// final increment for one scheduler tick before removal.
func (e RetryEntry) MaxAttemptsExceeded() bool {
	return e.Attempt >= e.MaxAttempts
}

// StoredBlob is an opaque ciphertext deposit held by the relay.
type StoredBlob struct {
	BlobID      string    `json:"blob_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Data        []byte    `json:"data"`
	CreatedAt   time.Time `json:"created_at"`
}
