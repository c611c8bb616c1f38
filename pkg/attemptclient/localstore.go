package attemptclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore keeps a device-local copy of draft answers.
type LocalStore interface {
	Save(sessionID uint, answers map[string]string) error
	Load(sessionID uint) (map[string]string, bool, error)
	Clear(sessionID uint) error
}

// MemoryStore is an in-process LocalStore.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[uint]map[string]string
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[uint]map[string]string)}
}

func (s *MemoryStore) Save(sessionID uint, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sessionID] = maps.Clone(answers)
	return nil
}

func (s *MemoryStore) Load(sessionID uint) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers, ok := s.drafts[sessionID]
	return maps.Clone(answers), ok, nil
}

func (s *MemoryStore) Clear(sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}

// FileStore persists drafts as one JSON file per session under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create draft directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(sessionID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("session-%d.json", sessionID))
}

func (s *FileStore) Save(sessionID uint, answers map[string]string) error {
	payload, err := json.Marshal(answers)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path(sessionID) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(sessionID))
}

func (s *FileStore) Load(sessionID uint) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	answers := map[string]string{}
	if err := json.Unmarshal(payload, &answers); err != nil {
		return nil, false, fmt.Errorf("decode local draft: %w", err)
	}
	return answers, true, nil
}

func (s *FileStore) Clear(sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
