// Package memory provides a process-local key-value backend for tests and ephemeral runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/manovate/crm/internal/app"
)

var _ app.KVStore = (*Store)(nil)

// Store keeps payloads in a map.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs an empty store.
func New() *Store {
	return &Store{data: map[string][]byte{}}
}

// Get returns a copy of the payload stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[key]
	if !ok {
		return nil, app.ErrNotFound
	}
	return slices.Clone(payload), nil
}

// Set stores a copy of payload under key.
func (s *Store) Set(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(payload)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
