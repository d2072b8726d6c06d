package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/queue"
)

// QueueFileVersion is the current version of the queue file format.
const QueueFileVersion = 1

// queueFile is the on-disk representation of the pending queue.
type queueFile struct {
	// Version is the queue file format version.
	Version int `json:"version"`

	// SavedAt is when the file was last written.
	SavedAt time.Time `json:"saved_at"`

	// Operations holds all pending records in insertion sequence
	// order.
	Operations []queue.PendingOperation `json:"operations,omitempty"`
}

// QueueStore persists pending operations to a JSON file. It implements
// queue.Store.
type QueueStore struct {
	mu   sync.Mutex
	path string
}

// NewQueueStore creates a queue store backed by the given file path.
func NewQueueStore(path string) *QueueStore {
	return &QueueStore{path: path}
}

// Append implements queue.Store.
func (s *QueueStore) Append(op queue.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return err
	}
	file.Operations = append(file.Operations, op)
	return s.saveLocked(file)
}

// Update implements queue.Store.
func (s *QueueStore) Update(op queue.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range file.Operations {
		if file.Operations[i].OperationID == op.OperationID {
			file.Operations[i] = op
			return s.saveLocked(file)
		}
	}
	return queue.ErrOperationNotFound
}

// Remove implements queue.Store.
func (s *QueueStore) Remove(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range file.Operations {
		if file.Operations[i].OperationID == operationID {
			file.Operations = append(file.Operations[:i], file.Operations[i+1:]...)
			return s.saveLocked(file)
		}
	}
	return nil
}

// Load implements queue.Store.
func (s *QueueStore) Load() ([]queue.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return file.Operations, nil
}

// Clear removes the queue file.
func (s *QueueStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// loadLocked reads the queue file. A missing file is an empty queue.
// Caller holds s.mu.
func (s *QueueStore) loadLocked() (*queueFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &queueFile{Version: QueueFileVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	file := &queueFile{}
	if err := json.Unmarshal(data, file); err != nil {
		return nil, err
	}
	return file, nil
}

// saveLocked writes the queue file. Caller holds s.mu.
func (s *QueueStore) saveLocked(file *queueFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file.Version = QueueFileVersion
	file.SavedAt = time.Now()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
