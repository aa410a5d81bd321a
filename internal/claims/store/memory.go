// Package store provides the expense claim persistence implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// InMemory is the map-backed claim store used in development and unit tests.
type InMemory struct {
	mu     sync.RWMutex
	claims map[id.ClaimID]*models.ExpenseClaim
}

func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[id.ClaimID]*models.ExpenseClaim)}
}

func (s *InMemory) Create(_ context.Context, claim *models.ExpenseClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[claim.ID]; exists {
		return sentinel.ErrConflict
	}
	s.claims[claim.ID] = cloneClaim(claim)
	return nil
}

func (s *InMemory) Get(_ context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[claimID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneClaim(claim), nil
}

// GetForUpdate matches the postgres store's locking read. The memory store
// relies on the workflow's per-claim serialization, so it is a plain read.
func (s *InMemory) GetForUpdate(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	return s.Get(ctx, claimID)
}

func (s *InMemory) Update(_ context.Context, claim *models.ExpenseClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.claims[claim.ID] = cloneClaim(claim)
	return nil
}

func (s *InMemory) ListBySubmitter(_ context.Context, submitterID id.UserID) ([]*models.ExpenseClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ExpenseClaim
	for _, claim := range s.claims {
		if claim.SubmitterID == submitterID {
			out = append(out, cloneClaim(claim))
		}
	}
	sortClaims(out)
	return out, nil
}

// ListPendingForApprover returns open claims waiting on the given approver.
func (s *InMemory) ListPendingForApprover(_ context.Context, approverID id.ApproverID) ([]*models.ExpenseClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ExpenseClaim
	for _, claim := range s.claims {
		if claim.State == id.ClaimStatePendingApproval && claim.HasApprover(approverID) {
			out = append(out, cloneClaim(claim))
		}
	}
	sortClaims(out)
	return out, nil
}

// sortClaims orders newest first, matching the postgres queries.
func sortClaims(claims []*models.ExpenseClaim) {
	sort.Slice(claims, func(i, j int) bool {
		if !claims[i].SubmittedAt.Equal(claims[j].SubmittedAt) {
			return claims[i].SubmittedAt.After(claims[j].SubmittedAt)
		}
		return claims[i].ID.String() < claims[j].ID.String()
	})
}

func cloneClaim(c *models.ExpenseClaim) *models.ExpenseClaim {
	out := *c
	out.RuleSnapshot = *c.RuleSnapshot.Clone()
	out.AssignedApprovers = append([]id.ApproverID(nil), c.AssignedApprovers...)
	out.PoolApprovers = append([]id.ApproverID(nil), c.PoolApprovers...)
	out.RequiredApprovers = append([]id.ApproverID(nil), c.RequiredApprovers...)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
