// Package memory provides the in-memory audit store for development and tests.
package memory

import (
	"context"
	"sync"

	"expenseflow/internal/audit"
)

// Store keeps audit events in an append-only slice.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListByClaim(_ context.Context, claimID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.ClaimID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every stored event in emission order. Test helper.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}
