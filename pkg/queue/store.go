package queue

import (
	"errors"
	"sort"
	"sync"
)

// ErrOperationNotFound is returned when an operation ID is not in the
// store.
var ErrOperationNotFound = errors.New("operation not found")

// Store persists PendingOperation records across process restarts.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a new record.
	Append(op PendingOperation) error

	// Update replaces the record with the same OperationID.
	// Returns ErrOperationNotFound if it does not exist.
	Update(op PendingOperation) error

	// Remove deletes the record. Removing an unknown ID is not an
	// error.
	Remove(operationID string) error

	// Load returns all records in insertion sequence order.
	Load() ([]PendingOperation, error)
}

// MemoryStore is an in-memory Store. Used in tests and as the
// degraded-durability fallback when a durable store fails.
type MemoryStore struct {
	mu  sync.Mutex
	ops map[string]PendingOperation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]PendingOperation)}
}

// Append implements Store.
func (s *MemoryStore) Append(op PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.OperationID] = op
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(op PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.OperationID]; !ok {
		return ErrOperationNotFound
	}
	s.ops[op.OperationID] = op
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, operationID)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load() ([]PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingOperation, 0, len(s.ops))
	for _, op := range s.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
