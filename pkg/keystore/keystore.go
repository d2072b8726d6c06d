// Package keystore defines the secure credential store collaborator
// used for access/refresh tokens and persisted session key material.
//
// The concrete at-rest protection (OS keychain, encrypted file, TPM) is
// provided by the embedding application; this package only fixes the
// contract and ships an in-memory implementation for tests and
// ephemeral clients.
package keystore

import (
	"errors"
	"sync"
)

// ErrNotFound indicates no value is stored under the requested key.
var ErrNotFound = errors.New("keystore: key not found")

// Well-known keys used by the core.
const (
	// KeyAuthToken stores the serialized auth token.
	KeyAuthToken = "auth.token"

	// KeyClientID stores the stable client identity.
	KeyClientID = "client.id"
)

// Store is the secure credential store contract.
// Implementations must be safe for concurrent use and provide
// platform-appropriate at-rest protection.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(key string, value []byte) error

	// Delete removes the value stored under key.
	// Deleting a missing key is not an error.
	Delete(key string) error
}

// Memory is an in-memory Store with no at-rest protection.
// Use for tests and clients that accept losing credentials on restart.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns the value stored under key, or ErrNotFound.
func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores value under key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[key] = v
	return nil
}

// Delete removes the value stored under key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*Memory)(nil)
