// Package envelope implements authenticated encryption of session
// traffic using the shared secret established by session negotiation.
//
// # Overview
//
// Each outbound message is sealed with ChaCha20-Poly1305 under a fresh
// random nonce; the nonce travels alongside the ciphertext in the wire
// payload wrapper. Decryption fails closed: any tag mismatch (tampering,
// wrong key, stale secret after rotation) is reported as an
// authentication failure and the plaintext is never partially exposed.
//
// # Security Properties
//
//   - Nonces are generated from crypto/rand per call and never reused
//     under the same key with overwhelming probability
//   - Ciphertext is authenticated; modification is always detected
//   - Envelopes are never persisted
package envelope
