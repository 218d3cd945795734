package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("new key failed: %v", err)
	}
	plaintext := []byte("meet me at the usual place")

	ciphertext, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if ciphertext[0] != algTagXChaCha20 {
		t.Fatalf("new encryption must carry tag 0x02, got 0x%02x", ciphertext[0])
	}
	got, err := Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecryptRejectsAnyTamperedByte(t *testing.T) {
	key, _ := NewKey()
	ciphertext, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	for i := 1; i < len(ciphertext); i++ {
		mutated := append([]byte(nil), ciphertext...)
		mutated[i] ^= 0x01
		if _, err := Decrypt(key, mutated); err == nil {
			t.Fatalf("tamper at byte %d must fail decryption", i)
		}
	}
}

func TestDecryptWrongKeyIsOpaque(t *testing.T) {
	key1, _ := NewKey()
	key2, _ := NewKey()
	ciphertext, _ := Encrypt(key1, []byte("secret"))
	if _, err := Decrypt(key2, ciphertext); err != ErrDecryptionFailed {
		t.Fatalf("wrong key must yield the opaque decrypt error, got %v", err)
	}
}

func TestDecryptAESGCMTagged(t *testing.T) {
	key, _ := NewKey()
	ciphertext, err := EncryptAESGCM(key, []byte("legacy tagged"))
	if err != nil {
		t.Fatalf("aes-gcm encrypt failed: %v", err)
	}
	if ciphertext[0] != algTagAESGCM {
		t.Fatalf("expected tag 0x01, got 0x%02x", ciphertext[0])
	}
	got, err := Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("aes-gcm decrypt failed: %v", err)
	}
	if string(got) != "legacy tagged" {
		t.Fatal("aes-gcm round trip mismatch")
	}
}

func TestDecryptLegacyUntagged(t *testing.T) {
	key, _ := NewKey()
	ciphertext, err := EncryptLegacyUntagged(key, []byte("pre-tag data"))
	if err != nil {
		t.Fatalf("legacy encrypt failed: %v", err)
	}
	got, err := Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("legacy decrypt failed: %v", err)
	}
	if string(got) != "pre-tag data" {
		t.Fatal("legacy round trip mismatch")
	}
}

func TestDecryptTruncatedCiphertext(t *testing.T) {
	key, _ := NewKey()
	ciphertext, _ := Encrypt(key, []byte("x"))
	for _, cut := range []int{0, 1, 5, 24} {
		if _, err := Decrypt(key, ciphertext[:cut]); err != ErrDecryptionFailed {
			t.Fatalf("truncation to %d bytes must fail with opaque error, got %v", cut, err)
		}
	}
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ZeroBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}
