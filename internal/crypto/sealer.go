// Package crypto seals OAuth2 credentials before they are written to storage.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeyLen is the length of the derived sealing key.
const KeyLen = chacha20poly1305.KeySize

var hkdfInfo = []byte("formkeeper token seal v1")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives a sealing key from a high-entropy secret via HKDF-SHA256.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty seal secret")
	}
	r := hkdf.New(sha256.New, secret, nil, hkdfInfo)
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// Sealer encrypts short secrets with XChaCha20-Poly1305 bound to caller-provided AAD.
type Sealer struct {
	key []byte
}

// NewSealer builds a sealer from a secret.
func NewSealer(secret []byte) (*Sealer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// Seal returns nonce||ciphertext.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open decrypts a value produced by Seal with the same AAD.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed value too short")
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}
