package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrKdfOutputTooLong = errors.New("kdf output too long")

// HKDFExtract computes the RFC 5869 extract step, returning a pseudorandom
// key. A nil salt is replaced by a zero-filled hash-length salt per the RFC.
func HKDFExtract(salt, ikm []byte) []byte {
	if len(salt) == 0 {
		salt = make([]byte, sha256.Size)
	}
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// HKDFExpand computes the RFC 5869 expand step over a pseudorandom key.
// Output length is capped at 255 hash lengths.
func HKDFExpand(prk, info []byte, length int) ([]byte, error) {
	if length > 255*sha256.Size {
		return nil, ErrKdfOutputTooLong
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveKey runs full HKDF-SHA256 (extract + expand) over ikm.
func DeriveKey(ikm, salt, info []byte, length int) ([]byte, error) {
	if length > 255*sha256.Size {
		return nil, ErrKdfOutputTooLong
	}
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), out); err != nil {
		return nil, err
	}
	return out, nil
}

// KDF32 derives a 32-byte key from ikm and an info string. Inputs here are
// fixed-size, so the expand read cannot fail.
func KDF32(ikm []byte, info string) []byte {
	out := make([]byte, 32)
	_, _ = io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(info)), out)
	return out
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
