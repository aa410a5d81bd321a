// Package service orchestrates approval rule administration. It keeps
// validation and versioning out of the handlers and persistence out of the
// models.
package service

import (
	"context"
	"errors"
	"time"

	"expenseflow/internal/audit"
	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
	"expenseflow/pkg/requestcontext"
)

// Store is the persistence surface the rule service needs.
type Store interface {
	Create(ctx context.Context, rule *models.ApprovalRule) error
	Update(ctx context.Context, rule *models.ApprovalRule, expectedVersion int64) error
	FindByID(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error)
	List(ctx context.Context) ([]*models.ApprovalRule, error)
	ListActive(ctx context.Context) ([]*models.ApprovalRule, error)
}

// Auditor records rule configuration changes.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	auditor Auditor
}

func NewService(store Store, auditor Auditor) *Service {
	return &Service{store: store, auditor: auditor}
}

// Create validates and persists a new rule at version 1.
func (s *Service) Create(ctx context.Context, rule *models.ApprovalRule) (*models.ApprovalRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.ID.IsNil() {
		rule.ID = id.NewRuleID()
	}
	now := time.Now()
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.store.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "rule already exists")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to create rule", err)
	}

	s.emit(ctx, audit.ActionRuleCreated, rule)
	return rule, nil
}

// Update replaces a rule's configuration. The caller supplies the version it
// last read; a mismatch means a concurrent edit won and the caller must
// re-read. Edits never touch claims already in flight, which carry their own
// frozen snapshot of the rule.
func (s *Service) Update(ctx context.Context, rule *models.ApprovalRule, expectedVersion int64) (*models.ApprovalRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	rule.Version = expectedVersion + 1
	rule.CreatedAt = current.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, rule, expectedVersion); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "rule was modified concurrently")
		default:
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to update rule", err)
		}
	}

	s.emit(ctx, audit.ActionRuleUpdated, rule)
	return rule, nil
}

// Deactivate takes a rule out of matching without deleting it. Snapshots on
// open claims keep evaluating under the deactivated rule.
func (s *Service) Deactivate(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error) {
	current, err := s.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return current, nil
	}

	expected := current.Version
	current.Active = false
	current.Version = expected + 1
	current.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, current, expected); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "rule was modified concurrently")
		default:
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to deactivate rule", err)
		}
	}

	s.emit(ctx, audit.ActionRuleDeactivated, current)
	return current, nil
}

func (s *Service) Get(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error) {
	rule, err := s.store.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load rule", err)
	}
	return rule, nil
}

func (s *Service) List(ctx context.Context) ([]*models.ApprovalRule, error) {
	rules, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list rules", err)
	}
	return rules, nil
}

func (s *Service) ListActive(ctx context.Context) ([]*models.ApprovalRule, error) {
	rules, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to list rules", err)
	}
	return rules, nil
}

// emit records a configuration change. Audit failures never fail the write;
// the change already happened.
func (s *Service) emit(ctx context.Context, action audit.Action, rule *models.ApprovalRule) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    action,
		RuleID:    rule.ID.String(),
		Actor:     requestcontext.UserID(ctx).String(),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
}
