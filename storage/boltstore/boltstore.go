// Package boltstore provides a durable-per-device Storage implementation
// backed by a BBolt database.
package boltstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	authsession "github.com/chimerakang/authsession-go"
)

var bucketName = []byte("authsession")

// Store implements authsession.Storage on a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ authsession.Storage = (*Store)(nil)

// New wraps an already-open BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewFromFile opens a BBolt database at the given path.
func NewFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("authsession/boltstore: opening db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *Store) Load(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(key)); data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("authsession/boltstore: load %q: %w", key, err)
	}
	return value, found, nil
}

func (s *Store) Remove(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketName) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName)
	})
}

// Available reports whether the database accepts transactions.
func (s *Store) Available() bool {
	if s.db == nil {
		return false
	}
	return s.db.View(func(tx *bbolt.Tx) error { return nil }) == nil
}
