// Package memory provides a volatile in-process Storage implementation.
// It is the degradation target when a durable medium is unavailable.
package memory

import (
	"sync"

	authsession "github.com/chimerakang/authsession-go"
)

// Store implements authsession.Storage on a plain map.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ authsession.Storage = (*Store)(nil)

// New creates an empty volatile store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) Load(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]string)
	return nil
}

// Available always reports true: process memory cannot be disabled.
func (s *Store) Available() bool { return true }
