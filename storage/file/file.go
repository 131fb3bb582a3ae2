// Package file provides a durable-per-instance Storage implementation:
// one JSON file scoped to a single client instance, the systems analog of
// per-tab storage. Writes go through a temp file and rename so a crash
// never leaves a half-written credential on disk.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	authsession "github.com/chimerakang/authsession-go"
)

// Store implements authsession.Storage on a single JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ authsession.Storage = (*Store)(nil)

// New creates a store persisting to path. The file is created on the
// first Save.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data[key] = value
	return s.write(data)
}

func (s *Store) Load(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.write(data)
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("authsession/file: clear: %w", err)
	}
	return nil
}

// Available reports whether the containing directory is writable.
func (s *Store) Available() bool {
	dir := filepath.Dir(s.path)
	probe, err := os.CreateTemp(dir, ".authsession-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

// read loads the file into a map. A missing file is an empty map.
// Caller holds s.mu.
func (s *Store) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("authsession/file: read: %w", err)
	}
	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("authsession/file: decode: %w", err)
	}
	return data, nil
}

// write persists the map atomically. Caller holds s.mu.
func (s *Store) write(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("authsession/file: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".authsession-*")
	if err != nil {
		return fmt.Errorf("authsession/file: write: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("authsession/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("authsession/file: write: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("authsession/file: write: %w", err)
	}
	return nil
}
