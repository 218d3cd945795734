package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// Ciphertext wire format: algorithm_tag (1 byte) || nonce || ciphertext+MAC.
// Tag 0x02 is XChaCha20-Poly1305 (24-byte nonce), tag 0x01 is AES-256-GCM
// (12-byte nonce). Any other first byte is treated as legacy untagged
// AES-256-GCM with a 12-byte nonce prefix. New encryption always emits 0x02.
const (
	algTagAESGCM    = 0x01
	algTagXChaCha20 = 0x02

	aesGCMNonceSize = 12
	aeadTagSize     = 16

	KeySize = chacha20poly1305.KeySize
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed is deliberately opaque: MAC mismatch, truncation,
	// and malformed headers are indistinguishable to the caller.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encrypt seals plaintext under the 256-bit key using XChaCha20-Poly1305
// with a fresh random nonce, emitting the tagged wire format.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	return EncryptWithAAD(key, plaintext, nil)
}

// EncryptWithAAD is Encrypt with additional authenticated data bound into
// the MAC.
func EncryptWithAAD(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrEncryptionFailed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, ErrEncryptionFailed
	}
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aeadTagSize)
	out = append(out, algTagXChaCha20)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Decrypt opens a ciphertext, dispatching on the algorithm tag.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	return DecryptWithAAD(key, ciphertext, nil)
}

// DecryptWithAAD is Decrypt with additional authenticated data. Only the
// XChaCha20 path supports AAD; tagged and legacy AES-GCM data predates it.
func DecryptWithAAD(key, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != KeySize || len(ciphertext) == 0 {
		return nil, ErrDecryptionFailed
	}
	switch ciphertext[0] {
	case algTagXChaCha20:
		return decryptXChaCha20(key, ciphertext[1:], aad)
	case algTagAESGCM:
		return decryptAESGCM(key, ciphertext[1:])
	default:
		// Legacy untagged AES-256-GCM: nonce (12) || ciphertext+MAC.
		return decryptAESGCM(key, ciphertext)
	}
}

func decryptXChaCha20(key, data, aad []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX+aeadTagSize {
		return nil, ErrDecryptionFailed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func decryptAESGCM(key, data []byte) ([]byte, error) {
	if len(data) < aesGCMNonceSize+aeadTagSize {
		return nil, ErrDecryptionFailed
	}
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, data[:aesGCMNonceSize], data[aesGCMNonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptAESGCM seals plaintext with tagged AES-256-GCM. Kept for
// compatibility tests; new data always uses Encrypt.
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	sealed, err := sealAESGCM(key, plaintext)
	if err != nil {
		return nil, err
	}
	return append([]byte{algTagAESGCM}, sealed...), nil
}

// EncryptLegacyUntagged seals plaintext in the pre-tag AES-256-GCM format.
// Only exercised by migration tests.
func EncryptLegacyUntagged(key, plaintext []byte) ([]byte, error) {
	return sealAESGCM(key, plaintext)
}

func sealAESGCM(key, plaintext []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	nonce := make([]byte, aesGCMNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, ErrEncryptionFailed
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// NewKey returns a fresh random 256-bit symmetric key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// RandomBytes fills and returns n bytes from the platform CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ZeroBytes overwrites b with zeros. Callers use it to scrub key material
// before release.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
