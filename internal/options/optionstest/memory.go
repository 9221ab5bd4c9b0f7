// Package optionstest provides an in-memory options store for tests.
package optionstest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/authority/internal/options"
)

// Store is an in-memory options.Store. FailSet, when set, is returned by
// Set for the matching key.
type Store struct {
	mu     sync.Mutex
	values map[string]string

	FailSet map[string]error
}

// NewStore returns a store seeded with values.
func NewStore(values map[string]string) *Store {
	s := &Store{values: make(map[string]string, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSet[key]; err != nil {
		return err
	}
	s.values[key] = value
	return nil
}

func (s *Store) SetDefault(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.values[key] = value
	}
	return nil
}

var _ options.Store = (*Store)(nil)
