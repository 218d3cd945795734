package crypto

import (
	"crypto/ed25519"
	"errors"

	"golang.org/x/crypto/curve25519"
)

var ErrInvalidKeySize = errors.New("invalid key size")

// Sign produces an Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// Verify reports whether sig is a valid Ed25519 signature over message.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// X25519PublicKey computes the Curve25519 public key for a 32-byte private
// scalar.
func X25519PublicKey(priv []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize {
		return nil, ErrInvalidKeySize
	}
	return curve25519.X25519(priv, curve25519.Basepoint)
}

// X25519SharedSecret computes the Diffie-Hellman shared secret between a
// local private scalar and a remote public key.
func X25519SharedSecret(priv, peerPub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(peerPub) != curve25519.PointSize {
		return nil, ErrInvalidKeySize
	}
	return curve25519.X25519(priv, peerPub)
}

// NewX25519KeyPair generates a fresh X25519 keypair from the CSPRNG.
func NewX25519KeyPair() (priv, pub []byte, err error) {
	priv, err = RandomBytes(curve25519.ScalarSize)
	if err != nil {
		return nil, nil, err
	}
	pub, err = X25519PublicKey(priv)
	if err != nil {
		ZeroBytes(priv)
		return nil, nil, err
	}
	return priv, pub, nil
}
