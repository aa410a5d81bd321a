// Package store provides the approval rule persistence implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// InMemory is the map-backed rule store used in development and unit tests.
type InMemory struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*models.ApprovalRule
}

// NewInMemory creates an empty in-memory rule store.
func NewInMemory() *InMemory {
	return &InMemory{rules: make(map[id.RuleID]*models.ApprovalRule)}
}

// Create stores a new rule. Returns ErrConflict if the ID already exists.
func (s *InMemory) Create(_ context.Context, rule *models.ApprovalRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrConflict
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Update replaces a rule if the caller saw the latest version.
// Returns ErrNotFound for unknown IDs, ErrConflict on version races.
func (s *InMemory) Update(_ context.Context, rule *models.ApprovalRule, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rules[rule.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// FindByID returns the rule with the given ID or ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, ruleID id.RuleID) (*models.ApprovalRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRule(rule), nil
}

// List returns all rules ordered by ID for deterministic output.
func (s *InMemory) List(_ context.Context) ([]*models.ApprovalRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ApprovalRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, cloneRule(rule))
	}
	sortRules(out)
	return out, nil
}

// ListActive returns the active rules ordered by ID.
func (s *InMemory) ListActive(_ context.Context) ([]*models.ApprovalRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ApprovalRule
	for _, rule := range s.rules {
		if rule.Active {
			out = append(out, cloneRule(rule))
		}
	}
	sortRules(out)
	return out, nil
}

func sortRules(rules []*models.ApprovalRule) {
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

// cloneRule copies a rule so callers can never mutate stored state through a
// shared pointer.
func cloneRule(r *models.ApprovalRule) *models.ApprovalRule {
	return r.Clone()
}
