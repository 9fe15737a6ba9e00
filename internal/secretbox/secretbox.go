// Package secretbox provides authenticated symmetric encryption for the
// account vault's at-rest representation.
//
// The wire shape is an explicit Envelope (IV, ciphertext, auth tag) rather
// than the concatenated form, because the durable-file backend persists the
// three parts as separate hex fields.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// IVSize is the GCM nonce length in bytes.
	IVSize = 16

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// Envelope is one encrypted write: a fresh random IV, the ciphertext and the
// authentication tag covering it. IV reuse under a fixed key is forbidden, so
// Encrypt draws a new IV on every call.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
	AuthTag    []byte
}

// GenerateKey returns a new 32-byte key from a cryptographically secure source.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random IV.
func Encrypt(plaintext, key []byte) (Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Envelope{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("generating iv: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it back out.
	sealed := aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize

	return Envelope{
		IV:         iv,
		Ciphertext: sealed[:split],
		AuthTag:    sealed[split:],
	}, nil
}

// Decrypt opens the envelope under key. It fails if the envelope is malformed
// or the authentication tag does not verify (tampering, wrong key, corruption)
// and never returns unauthenticated plaintext.
func Decrypt(env Envelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(env.IV) != IVSize {
		return nil, fmt.Errorf("malformed envelope: iv must be %d bytes, got %d", IVSize, len(env.IV))
	}
	if len(env.AuthTag) != TagSize {
		return nil, fmt.Errorf("malformed envelope: auth tag must be %d bytes, got %d", TagSize, len(env.AuthTag))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("opening envelope: authentication failed: %w", err)
	}
	return plaintext, nil
}

// newAEAD builds the AES-256-GCM primitive with the envelope's 16-byte nonce size.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return aead, nil
}
