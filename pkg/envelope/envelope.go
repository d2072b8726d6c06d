package envelope

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// KeySize is the required shared secret size in bytes.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the nonce size in bytes.
const NonceSize = chacha20poly1305.NonceSize

// Envelope errors.
var (
	// ErrAuthenticationFailed indicates the ciphertext failed
	// authentication (tampering, wrong key, or stale secret).
	ErrAuthenticationFailed = errors.New("envelope authentication failed")

	// ErrInvalidKeySize indicates the shared secret has the wrong length.
	ErrInvalidKeySize = errors.New("invalid shared secret size")

	// ErrInvalidNonce indicates the envelope nonce has the wrong length.
	ErrInvalidNonce = errors.New("invalid envelope nonce")
)

// Seal encrypts plaintext under the shared secret and returns the wire
// payload wrapper. A fresh random nonce is generated per call.
func Seal(plaintext, secret []byte) (*wire.EnvelopePayload, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return &wire.EnvelopePayload{
		Data:  ciphertext,
		Nonce: nonce,
	}, nil
}

// Open decrypts an envelope payload under the shared secret.
// Returns ErrAuthenticationFailed on any tag mismatch.
func Open(payload *wire.EnvelopePayload, secret []byte) ([]byte, error) {
	aead, err := newAEAD(secret)
	if err != nil {
		return nil, err
	}

	if len(payload.Nonce) != NonceSize {
		return nil, ErrInvalidNonce
	}

	plaintext, err := aead.Open(nil, payload.Nonce, payload.Data, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// newAEAD constructs the AEAD cipher for a shared secret.
func newAEAD(secret []byte) (cipher.AEAD, error) {
	if len(secret) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
