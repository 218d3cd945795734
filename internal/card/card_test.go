package card

import (
	"bytes"
	"strings"
	"testing"

	"vauchi/go-core/pkg/models"
)

func TestNewCardValidation(t *testing.T) {
	if _, err := New(""); err != ErrEmptyDisplayName {
		t.Fatalf("expected ErrEmptyDisplayName, got %v", err)
	}
	if _, err := New(strings.Repeat("x", 101)); err != ErrDisplayNameTooLong {
		t.Fatalf("expected ErrDisplayNameTooLong, got %v", err)
	}
	c, err := New("Alice")
	if err != nil {
		t.Fatalf("new card failed: %v", err)
	}
	if len(c.CardID) != 16 {
		t.Fatalf("card id must be 8 random bytes hex encoded, got %q", c.CardID)
	}
}

func TestFieldValidationRules(t *testing.T) {
	cases := []struct {
		name    string
		ftype   models.FieldType
		value   string
		wantErr error
	}{
		{"valid_phone", models.FieldPhone, "+1 (555) 123-4567", nil},
		{"phone_too_few_digits", models.FieldPhone, "12345", ErrInvalidPhone},
		{"phone_bad_charset", models.FieldPhone, "555-1234x890", ErrInvalidPhone},
		{"valid_email", models.FieldEmail, "a@example.com", nil},
		{"email_no_at", models.FieldEmail, "example.com", ErrInvalidEmail},
		{"email_no_local", models.FieldEmail, "@example.com", ErrInvalidEmail},
		{"email_no_domain", models.FieldEmail, "a@", ErrInvalidEmail},
		{"email_double_at", models.FieldEmail, "a@b@c", ErrInvalidEmail},
		{"custom_freeform", models.FieldCustom, "anything goes", nil},
		{"value_too_long", models.FieldCustom, strings.Repeat("v", 1001), ErrValueTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewField(tc.ftype, "label", tc.value)
			if err != tc.wantErr {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAddFieldLimit(t *testing.T) {
	c, _ := New("Alice")
	for i := 0; i < MaxFields; i++ {
		f, err := NewField(models.FieldCustom, "label", "value")
		if err != nil {
			t.Fatalf("new field failed: %v", err)
		}
		if err := AddField(&c, f); err != nil {
			t.Fatalf("add field %d failed: %v", i, err)
		}
	}
	extra, _ := NewField(models.FieldCustom, "label", "value")
	if err := AddField(&c, extra); err != ErrMaxFieldsReached {
		t.Fatalf("expected ErrMaxFieldsReached, got %v", err)
	}
}

func TestUpdateAndRemoveField(t *testing.T) {
	c, _ := New("Alice")
	f, _ := NewField(models.FieldEmail, "work", "old@work.com")
	if err := AddField(&c, f); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := UpdateFieldValue(&c, f.ID, "new@work.com"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if c.Fields[0].Value != "new@work.com" {
		t.Fatal("value not updated")
	}
	if err := UpdateFieldValue(&c, "missing", "x@y.z"); err != ErrFieldNotFound {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
	if err := UpdateFieldValue(&c, f.ID, "not-an-email"); err != ErrInvalidEmail {
		t.Fatalf("update must re-validate, got %v", err)
	}
	if err := RemoveField(&c, f.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(c.Fields) != 0 {
		t.Fatal("field not removed")
	}
}

func TestReorderFields(t *testing.T) {
	c, _ := New("Alice")
	var ids []string
	for _, v := range []string{"one", "two", "three"} {
		f, _ := NewField(models.FieldCustom, v, v)
		if err := AddField(&c, f); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		ids = append(ids, f.ID)
	}
	if err := ReorderFields(&c, []string{ids[2], ids[0], ids[1]}); err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	if c.Fields[0].Label != "three" || c.Fields[1].Label != "one" {
		t.Fatal("reorder order wrong")
	}
	if err := ReorderFields(&c, []string{ids[0], ids[1]}); err != ErrFieldNotFound {
		t.Fatalf("partial reorder must fail, got %v", err)
	}
}

func TestAvatarSizeLimit(t *testing.T) {
	c, _ := New("Alice")
	if err := SetAvatar(&c, bytes.Repeat([]byte{1}, MaxAvatarSizeBytes+1)); err != ErrAvatarTooLarge {
		t.Fatalf("expected ErrAvatarTooLarge, got %v", err)
	}
	if err := SetAvatar(&c, []byte{1, 2, 3}); err != nil {
		t.Fatalf("set avatar failed: %v", err)
	}
}

func TestValidateSize(t *testing.T) {
	c, _ := New("Alice")
	if err := ValidateSize(&c); err != nil {
		t.Fatalf("small card must validate: %v", err)
	}
	c.Avatar = bytes.Repeat([]byte{1}, MaxCardSizeBytes)
	if err := ValidateSize(&c); err != ErrCardTooLarge {
		t.Fatalf("expected ErrCardTooLarge, got %v", err)
	}
}
