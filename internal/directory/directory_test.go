package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	rulesmodels "expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

type DirectorySuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
	svc   *Service
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

type staticTokens struct{}

func (staticTokens) GenerateAccessToken(id.UserID, id.Role, time.Duration) (string, error) {
	return "token", nil
}

func (s *DirectorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.svc = NewService(s.store, staticTokens{}, nil)
}

func (s *DirectorySuite) createUser(name string, role id.Role, managerID *id.UserID) *User {
	user, err := s.svc.CreateUser(s.ctx, CreateUserParams{
		FullName:   name,
		Email:      name + "@example.com",
		Password:   "correct horse",
		Role:       role,
		Department: "engineering",
		ManagerID:  managerID,
	})
	s.Require().NoError(err)
	return user
}

// =============================================================================
// Service
// =============================================================================

func (s *DirectorySuite) TestCreateUserHashesPassword() {
	user := s.createUser("ana", id.RoleEmployee, nil)
	s.NotEqual("correct horse", user.PasswordHash)
	s.False(user.ID.IsNil())
}

func (s *DirectorySuite) TestCreateUserRejectsShortPassword() {
	_, err := s.svc.CreateUser(s.ctx, CreateUserParams{
		FullName: "ana", Email: "ana@example.com", Password: "short", Role: id.RoleEmployee,
	})
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *DirectorySuite) TestCreateUserRejectsUnknownManager() {
	ghost := id.NewUserID()
	_, err := s.svc.CreateUser(s.ctx, CreateUserParams{
		FullName: "ana", Email: "ana@example.com", Password: "correct horse",
		Role: id.RoleEmployee, ManagerID: &ghost,
	})
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *DirectorySuite) TestCreateUserDuplicateEmail() {
	s.createUser("ana", id.RoleEmployee, nil)
	_, err := s.svc.CreateUser(s.ctx, CreateUserParams{
		FullName: "other", Email: "ana@example.com", Password: "correct horse", Role: id.RoleEmployee,
	})
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *DirectorySuite) TestAuthenticate() {
	s.createUser("ana", id.RoleManager, nil)

	s.Run("valid credentials", func() {
		token, user, err := s.svc.Authenticate(s.ctx, "ana@example.com", "correct horse")
		s.Require().NoError(err)
		s.Equal("token", token)
		s.Equal(id.RoleManager, user.Role)
	})
	s.Run("wrong password", func() {
		_, _, err := s.svc.Authenticate(s.ctx, "ana@example.com", "wrong")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
	s.Run("unknown email reports the same error", func() {
		_, _, err := s.svc.Authenticate(s.ctx, "nobody@example.com", "correct horse")
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

// =============================================================================
// Resolver
// =============================================================================

func (s *DirectorySuite) TestResolverRoleAndConcreteRefs() {
	finance1 := s.createUser("fin1", id.RoleFinance, nil)
	finance2 := s.createUser("fin2", id.RoleFinance, nil)
	cfo := s.createUser("cfo", id.RoleDirector, nil)
	submitter := s.createUser("emp", id.RoleEmployee, nil)

	rule := &rulesmodels.ApprovalRule{
		Kind: id.RuleKindHybrid,
		Hybrid: &rulesmodels.HybridConfig{
			Threshold:  0.5,
			Pool:       []rulesmodels.ApproverRef{"finance"},
			Approvers:  []rulesmodels.ApproverRef{rulesmodels.ApproverRef(cfo.ID.String())},
			Combinator: id.CombinatorAnd,
		},
	}

	resolved, err := NewResolver(s.store).ResolveApprovers(s.ctx, rule, submitter.ID)
	s.Require().NoError(err)
	s.ElementsMatch([]id.ApproverID{finance1.ApproverID(), finance2.ApproverID()}, resolved.Pool)
	s.Equal([]id.ApproverID{cfo.ApproverID()}, resolved.Required)
	s.Len(resolved.Assigned, 3)
}

func (s *DirectorySuite) TestResolverManagerRef() {
	manager := s.createUser("mgr", id.RoleManager, nil)
	submitter := s.createUser("emp", id.RoleEmployee, &manager.ID)

	rule := &rulesmodels.ApprovalRule{
		Kind: id.RuleKindSpecific,
		Specific: &rulesmodels.SpecificConfig{
			Approvers: []rulesmodels.ApproverRef{rulesmodels.RefManager},
		},
	}

	resolved, err := NewResolver(s.store).ResolveApprovers(s.ctx, rule, submitter.ID)
	s.Require().NoError(err)
	s.Equal([]id.ApproverID{manager.ApproverID()}, resolved.Required)
}

func (s *DirectorySuite) TestResolverManagerRefWithoutManager() {
	submitter := s.createUser("emp", id.RoleEmployee, nil)

	rule := &rulesmodels.ApprovalRule{
		Kind: id.RuleKindSpecific,
		Specific: &rulesmodels.SpecificConfig{
			Approvers: []rulesmodels.ApproverRef{rulesmodels.RefManager},
		},
	}

	resolved, err := NewResolver(s.store).ResolveApprovers(s.ctx, rule, submitter.ID)
	s.Require().NoError(err)
	s.Empty(resolved.Required, "a missing manager edge resolves to nothing")
	s.Empty(resolved.Assigned)
}

func (s *DirectorySuite) TestResolverUnknownConcreteRef() {
	submitter := s.createUser("emp", id.RoleEmployee, nil)

	rule := &rulesmodels.ApprovalRule{
		Kind: id.RuleKindSpecific,
		Specific: &rulesmodels.SpecificConfig{
			Approvers: []rulesmodels.ApproverRef{rulesmodels.ApproverRef(id.NewUserID().String())},
		},
	}

	_, err := NewResolver(s.store).ResolveApprovers(s.ctx, rule, submitter.ID)
	s.True(dErrors.Is(err, dErrors.CodeInvariantViolation))
}
