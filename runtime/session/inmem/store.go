// Package inmem provides an in-memory implementation of session.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation (features/session/redis or
// features/session/mongo).
package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sokoflow/sokoflow/runtime/session"
)

// Store is an in-memory session.Store. It is safe for concurrent use and
// round-trips documents through JSON so callers observe the same copy
// semantics as a remote store.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// Load implements session.Store.
func (s *Store) Load(_ context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}
	s.mu.RLock()
	raw, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, session.ErrNotFound
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save implements session.Store.
func (s *Store) Save(_ context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[sess.Key()] = raw
	s.mu.Unlock()
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.New("session key is required")
	}
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}
