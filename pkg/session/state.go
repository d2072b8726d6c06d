package session

import "errors"

// State represents the session state.
type State uint8

const (
	// StateUninitialized indicates no handshake has been attempted.
	StateUninitialized State = iota

	// StateNegotiating indicates a handshake exchange is in flight.
	StateNegotiating

	// StateActive indicates a shared secret is established.
	StateActive

	// StateFailed indicates the last handshake failed terminally.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateActive:
		return "ACTIVE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Session errors.
var (
	// ErrHandshakeTimeout indicates the handshake exchange timed out.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrHandshakeRejected indicates the server refused the handshake.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrKeyDerivation indicates the shared secret could not be derived
	// (malformed peer key or HKDF failure).
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrNotEstablished indicates no active session exists.
	ErrNotEstablished = errors.New("session not established")
)
