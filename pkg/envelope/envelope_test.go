package envelope

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/corelink-proto/corelink-go/pkg/wire"
)

func testSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("failed to generate secret: %v", err)
	}
	return secret
}

func TestSealOpenRoundTrip(t *testing.T) {
	secret := testSecret(t)

	plaintexts := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 64*1024),
	}

	for _, pt := range plaintexts {
		payload, err := Seal(pt, secret)
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}

		got, err := Open(payload, secret)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(pt))
		}
	}
}

func TestNonceUniqueness(t *testing.T) {
	secret := testSecret(t)
	plaintext := []byte("identical plaintext")

	a, err := Seal(plaintext, secret)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal(plaintext, secret)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("two Seal calls produced the same nonce")
	}
	if bytes.Equal(a.Data, b.Data) {
		t.Error("two Seal calls produced the same ciphertext")
	}
}

func TestOpenFailsClosed(t *testing.T) {
	secret := testSecret(t)

	payload, err := Seal([]byte("sensitive"), secret)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	t.Run("TamperedCiphertext", func(t *testing.T) {
		tampered := &wire.EnvelopePayload{
			Data:  append([]byte{}, payload.Data...),
			Nonce: payload.Nonce,
		}
		tampered.Data[0] ^= 0x01

		if _, err := Open(tampered, secret); err != ErrAuthenticationFailed {
			t.Errorf("Open tampered = %v, want ErrAuthenticationFailed", err)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other := testSecret(t)
		if _, err := Open(payload, other); err != ErrAuthenticationFailed {
			t.Errorf("Open with wrong key = %v, want ErrAuthenticationFailed", err)
		}
	})

	t.Run("TamperedNonce", func(t *testing.T) {
		tampered := &wire.EnvelopePayload{
			Data:  payload.Data,
			Nonce: append([]byte{}, payload.Nonce...),
		}
		tampered.Nonce[0] ^= 0x01

		if _, err := Open(tampered, secret); err != ErrAuthenticationFailed {
			t.Errorf("Open with tampered nonce = %v, want ErrAuthenticationFailed", err)
		}
	})

	t.Run("TruncatedNonce", func(t *testing.T) {
		truncated := &wire.EnvelopePayload{
			Data:  payload.Data,
			Nonce: payload.Nonce[:NonceSize-1],
		}
		if _, err := Open(truncated, secret); err != ErrInvalidNonce {
			t.Errorf("Open with truncated nonce = %v, want ErrInvalidNonce", err)
		}
	})
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := Seal([]byte("x"), make([]byte, 16)); err != ErrInvalidKeySize {
		t.Errorf("Seal with short key = %v, want ErrInvalidKeySize", err)
	}
	payload := &wire.EnvelopePayload{Data: []byte{1}, Nonce: make([]byte, NonceSize)}
	if _, err := Open(payload, make([]byte, 16)); err != ErrInvalidKeySize {
		t.Errorf("Open with short key = %v, want ErrInvalidKeySize", err)
	}
}
