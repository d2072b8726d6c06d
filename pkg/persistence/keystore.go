package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/keystore"
)

// KeystoreFileVersion is the current version of the keystore file
// format.
const KeystoreFileVersion = 1

// keystoreFile is the on-disk representation of the credential store.
type keystoreFile struct {
	// Version is the keystore file format version.
	Version int `json:"version"`

	// SavedAt is when the file was last written.
	SavedAt time.Time `json:"saved_at"`

	// Entries maps credential keys to values. Values are base64 in
	// the JSON encoding.
	Entries map[string][]byte `json:"entries,omitempty"`
}

// FileKeystore persists credentials to a JSON file with 0600
// permissions. It implements keystore.Store. Platform keychains offer
// stronger at-rest protection; this is the portable fallback.
type FileKeystore struct {
	mu   sync.Mutex
	path string
}

// NewFileKeystore creates a keystore backed by the given file path.
func NewFileKeystore(path string) *FileKeystore {
	return &FileKeystore{path: path}
}

// Get implements keystore.Store.
func (s *FileKeystore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	value, ok := file.Entries[key]
	if !ok {
		return nil, keystore.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set implements keystore.Store.
func (s *FileKeystore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return err
	}
	if file.Entries == nil {
		file.Entries = make(map[string][]byte)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	file.Entries[key] = stored
	return s.saveLocked(file)
}

// Delete implements keystore.Store. Deleting an absent key is not an
// error.
func (s *FileKeystore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := file.Entries[key]; !ok {
		return nil
	}
	delete(file.Entries, key)
	return s.saveLocked(file)
}

// Clear removes the keystore file.
func (s *FileKeystore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// loadLocked reads the keystore file. A missing file is an empty
// store. Caller holds s.mu.
func (s *FileKeystore) loadLocked() (*keystoreFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &keystoreFile{Version: KeystoreFileVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	file := &keystoreFile{}
	if err := json.Unmarshal(data, file); err != nil {
		return nil, err
	}
	return file, nil
}

// saveLocked writes the keystore file. Caller holds s.mu.
func (s *FileKeystore) saveLocked(file *keystoreFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	file.Version = KeystoreFileVersion
	file.SavedAt = time.Now()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
