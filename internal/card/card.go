package card

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"vauchi/go-core/internal/crypto"
	"vauchi/go-core/pkg/models"
)

const (
	MaxFields            = 25
	MaxDisplayNameLength = 100
	MaxValueLength       = 1000
	MaxCardSizeBytes     = 64 * 1024
	MaxAvatarSizeBytes   = 256 * 1024
)

var (
	ErrEmptyDisplayName   = errors.New("display name must not be empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrMaxFieldsReached   = errors.New("card is at the field limit")
	ErrFieldNotFound      = errors.New("field not found")
	ErrCardTooLarge       = errors.New("card exceeds maximum serialized size")
	ErrAvatarTooLarge     = errors.New("avatar exceeds maximum size")
	ErrValueTooLong       = errors.New("field value too long")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// New creates an empty contact card with a random card ID.
func New(displayName string) (models.ContactCard, error) {
	if err := validateDisplayName(displayName); err != nil {
		return models.ContactCard{}, err
	}
	id, err := crypto.RandomBytes(8)
	if err != nil {
		return models.ContactCard{}, err
	}
	return models.ContactCard{
		CardID:      hex.EncodeToString(id),
		DisplayName: displayName,
	}, nil
}

// NewField creates a field with a random 8-byte hex ID and a fresh
// updated_at timestamp.
func NewField(fieldType models.FieldType, label, value string) (models.Field, error) {
	id, err := crypto.RandomBytes(8)
	if err != nil {
		return models.Field{}, err
	}
	f := models.Field{
		ID:        hex.EncodeToString(id),
		Type:      fieldType,
		Label:     label,
		Value:     value,
		UpdatedAt: time.Now().UTC().Unix(),
	}
	if err := ValidateField(f); err != nil {
		return models.Field{}, err
	}
	return f, nil
}

// ValidateField checks the value against type-specific rules.
func ValidateField(f models.Field) error {
	if len(f.Value) > MaxValueLength {
		return ErrValueTooLong
	}
	switch f.Type {
	case models.FieldPhone:
		return validatePhone(f.Value)
	case models.FieldEmail:
		return validateEmail(f.Value)
	default:
		return nil
	}
}

func validatePhone(value string) error {
	digits := 0
	for _, c := range value {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '+':
		default:
			return ErrInvalidPhone
		}
	}
	if digits < 7 {
		return ErrInvalidPhone
	}
	return nil
}

func validateEmail(value string) error {
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 {
		return ErrInvalidEmail
	}
	if strings.Count(value, "@") != 1 {
		return ErrInvalidEmail
	}
	return nil
}

func validateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	return nil
}

// SetDisplayName validates and applies a new display name.
func SetDisplayName(card *models.ContactCard, name string) error {
	if err := validateDisplayName(name); err != nil {
		return err
	}
	card.DisplayName = name
	return nil
}

// AddField validates and appends a field.
func AddField(card *models.ContactCard, f models.Field) error {
	if len(card.Fields) >= MaxFields {
		return ErrMaxFieldsReached
	}
	if err := ValidateField(f); err != nil {
		return err
	}
	card.Fields = append(card.Fields, f)
	return nil
}

// UpdateFieldValue sets a field's value by ID, refreshing updated_at.
func UpdateFieldValue(card *models.ContactCard, fieldID, value string) error {
	for i := range card.Fields {
		if card.Fields[i].ID == fieldID {
			candidate := card.Fields[i]
			candidate.Value = value
			if err := ValidateField(candidate); err != nil {
				return err
			}
			card.Fields[i].Value = value
			card.Fields[i].UpdatedAt = time.Now().UTC().Unix()
			return nil
		}
	}
	return ErrFieldNotFound
}

// RemoveField deletes a field by ID.
func RemoveField(card *models.ContactCard, fieldID string) error {
	for i := range card.Fields {
		if card.Fields[i].ID == fieldID {
			card.Fields = append(card.Fields[:i], card.Fields[i+1:]...)
			return nil
		}
	}
	return ErrFieldNotFound
}

// ReorderFields rearranges fields to the given ID order. Every current
// field must appear exactly once.
func ReorderFields(card *models.ContactCard, fieldIDs []string) error {
	if len(fieldIDs) != len(card.Fields) {
		return ErrFieldNotFound
	}
	byID := make(map[string]models.Field, len(card.Fields))
	for _, f := range card.Fields {
		byID[f.ID] = f
	}
	reordered := make([]models.Field, 0, len(fieldIDs))
	for _, id := range fieldIDs {
		f, ok := byID[id]
		if !ok {
			return ErrFieldNotFound
		}
		delete(byID, id)
		reordered = append(reordered, f)
	}
	card.Fields = reordered
	return nil
}

// SetAvatar attaches an avatar blob.
func SetAvatar(card *models.ContactCard, data []byte) error {
	if len(data) > MaxAvatarSizeBytes {
		return ErrAvatarTooLarge
	}
	card.Avatar = append([]byte(nil), data...)
	return nil
}

// ValidateSize checks the serialized card against the size cap.
func ValidateSize(card *models.ContactCard) error {
	raw, err := json.Marshal(card)
	if err != nil {
		return err
	}
	if len(raw) > MaxCardSizeBytes {
		return ErrCardTooLarge
	}
	return nil
}

// Clone deep-copies a card.
func Clone(card models.ContactCard) models.ContactCard {
	out := card
	out.Fields = append([]models.Field(nil), card.Fields...)
	out.Avatar = append([]byte(nil), card.Avatar...)
	return out
}
