// Package cookie provides an ambient Storage implementation with cookie
// semantics: entries carry a lifetime and silently disappear once it
// passes. A zero lifetime means session-cookie behavior — the entry
// lives until the process exits or the store is cleared.
package cookie

import (
	"sync"
	"time"

	authsession "github.com/chimerakang/authsession-go"
)

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Store implements authsession.Storage with per-entry expiry.
type Store struct {
	mu   sync.Mutex
	jar  map[string]entry
	ttl  time.Duration
	now  func() time.Time
}

var _ authsession.Storage = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the lifetime applied to saved entries. Zero (the default)
// keeps entries for the life of the process.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty cookie-semantics store.
func New(opts ...Option) *Store {
	s := &Store{
		jar: make(map[string]entry),
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.jar[key] = e
	return nil
}

func (s *Store) Load(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jar[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !e.expires.After(s.now()) {
		delete(s.jar, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jar, key)
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jar = make(map[string]entry)
	return nil
}

// Available always reports true for the in-process jar.
func (s *Store) Available() bool { return true }
