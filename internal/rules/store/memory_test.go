package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

type InMemoryRuleStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
}

func TestInMemoryRuleStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryRuleStoreSuite))
}

func (s *InMemoryRuleStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemoryRuleStoreSuite) newRule(active bool) *models.ApprovalRule {
	return &models.ApprovalRule{
		ID:   id.NewRuleID(),
		Name: "test rule",
		Kind: id.RuleKindPercentage,
		Percentage: &models.PercentageConfig{
			Threshold: 0.5,
			Pool:      []models.ApproverRef{"finance"},
		},
		Active:  active,
		Version: 1,
	}
}

func (s *InMemoryRuleStoreSuite) TestCreateAndFind() {
	rule := s.newRule(true)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	got, err := s.store.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal(rule.Name, got.Name)

	s.ErrorIs(s.store.Create(s.ctx, rule), sentinel.ErrConflict)
}

func (s *InMemoryRuleStoreSuite) TestFindUnknownID() {
	_, err := s.store.FindByID(s.ctx, id.NewRuleID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryRuleStoreSuite) TestUpdateEnforcesVersion() {
	rule := s.newRule(true)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	updated := *rule
	updated.Name = "renamed"
	updated.Version = 2
	s.Require().NoError(s.store.Update(s.ctx, &updated, 1))

	// The same expected version again is stale now.
	stale := *rule
	stale.Version = 2
	s.ErrorIs(s.store.Update(s.ctx, &stale, 1), sentinel.ErrConflict)

	missing := s.newRule(true)
	s.ErrorIs(s.store.Update(s.ctx, missing, 1), sentinel.ErrNotFound)
}

func (s *InMemoryRuleStoreSuite) TestListActiveFiltersInactive() {
	active := s.newRule(true)
	inactive := s.newRule(false)
	s.Require().NoError(s.store.Create(s.ctx, active))
	s.Require().NoError(s.store.Create(s.ctx, inactive))

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	activeOnly, err := s.store.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(activeOnly, 1)
	s.Equal(active.ID, activeOnly[0].ID)
}

func (s *InMemoryRuleStoreSuite) TestReadsReturnCopies() {
	rule := s.newRule(true)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	got, err := s.store.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	got.Name = "mutated"
	got.Percentage.Pool[0] = "tampered"

	again, err := s.store.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal("test rule", again.Name)
	s.Equal(models.ApproverRef("finance"), again.Percentage.Pool[0])
}
