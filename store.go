package wsserial

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys used in the durable store
const (
	KeyDeviceNames = "deviceNames"
	KeyBaudRate    = "currentBaudRate"
)

// Store is a durable key-value store holding JSON values. Load returns
// ErrNotFound for missing keys.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
}

// MemoryStore keeps values in memory only
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Load(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Save(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// FileStore keeps all keys in a single JSON document. Every operation takes
// an advisory lock on a sibling ".lock" file so several processes sharing the
// same state file do not lose each other's updates. Writes go to a temporary
// file that is renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty state file path", ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(key string) ([]byte, error) {
	var out []byte
	err := s.locked(func(doc map[string]json.RawMessage) (bool, error) {
		v, ok := doc[key]
		if !ok {
			return false, ErrNotFound
		}
		out = append([]byte(nil), v...)
		return false, nil
	})
	return out, err
}

func (s *FileStore) Save(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: value for %q is not JSON", ErrInvalidConfig, key)
	}
	return s.locked(func(doc map[string]json.RawMessage) (bool, error) {
		doc[key] = json.RawMessage(value)
		return true, nil
	})
}

// locked loads the document under the file lock, runs fn, and writes the
// document back if fn reports a change
func (s *FileStore) locked(fn func(doc map[string]json.RawMessage) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}
	return s.write(doc)
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt document is treated as empty; the next Save rewrites it.
		return make(map[string]json.RawMessage), nil
	}
	return doc, nil
}

func (s *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
