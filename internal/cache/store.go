package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists entries. Every Manager mutation is written through to it.
// Keys are already hashed.
type Store interface {
	Load() (map[string]Entry, error)
	Put(key string, entry Entry) error
	Delete(keys ...string) error
}

// FileStore keeps the whole cache in one JSON object on disk and rewrites
// the file on every mutation.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, entries: make(map[string]Entry)}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the file. A missing file is an empty cache.
func (s *FileStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.entries = make(map[string]Entry)
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file %s: %w", s.path, err)
	}

	entries := make(map[string]Entry)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parse cache file %s: %w", s.path, err)
		}
	}
	s.entries = entries

	out := make(map[string]Entry, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, nil
}

func (s *FileStore) Put(key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return s.flushLocked()
}

func (s *FileStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
