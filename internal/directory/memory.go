package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// InMemory is the map-backed directory used in development and unit tests.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.UserID]*User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.UserID]*User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, exists := s.byID[user.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byEmail[email]; exists {
		return sentinel.ErrConflict
	}
	u := *user
	s.byID[user.ID] = &u
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	u := *s.byID[userID]
	return &u, nil
}

func (s *InMemory) ListByRole(_ context.Context, role id.Role) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, user := range s.byID {
		if user.Role == role {
			u := *user
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}
