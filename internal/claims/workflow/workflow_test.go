package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"expenseflow/internal/audit"
	auditmem "expenseflow/internal/audit/store/memory"
	"expenseflow/internal/claims/ledger"
	claimsmodels "expenseflow/internal/claims/models"
	claimstore "expenseflow/internal/claims/store"
	"expenseflow/internal/directory"
	rulesmodels "expenseflow/internal/rules/models"
	rulestore "expenseflow/internal/rules/store"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

type WorkflowSuite struct {
	suite.Suite
	ctx      context.Context
	svc      *Service
	rules    *rulestore.InMemory
	users    *directory.InMemory
	auditLog *auditmem.Store

	submitter *directory.User
	finance   []*directory.User
	cfo       *directory.User
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()
	s.rules = rulestore.NewInMemory()
	s.users = directory.NewInMemory()
	s.auditLog = auditmem.New()

	s.svc = NewService(
		claimstore.NewInMemory(),
		ledger.NewInMemory(),
		s.rules,
		directory.NewResolver(s.users),
		audit.NewPublisher(s.auditLog),
		NopTransactor{},
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	s.submitter = s.addUser("emp", id.RoleEmployee, nil)
	s.finance = []*directory.User{
		s.addUser("fin1", id.RoleFinance, nil),
		s.addUser("fin2", id.RoleFinance, nil),
		s.addUser("fin3", id.RoleFinance, nil),
	}
	s.cfo = s.addUser("cfo", id.RoleDirector, nil)
}

func (s *WorkflowSuite) addUser(name string, role id.Role, managerID *id.UserID) *directory.User {
	user := &directory.User{
		ID:         id.NewUserID(),
		FullName:   name,
		Email:      name + "@example.com",
		Role:       role,
		Department: "engineering",
		ManagerID:  managerID,
	}
	s.Require().NoError(s.users.Create(s.ctx, user))
	return user
}

func (s *WorkflowSuite) addRule(rule *rulesmodels.ApprovalRule) *rulesmodels.ApprovalRule {
	rule.ID = id.NewRuleID()
	rule.Version = 1
	s.Require().NoError(s.rules.Create(s.ctx, rule))
	return rule
}

func (s *WorkflowSuite) addPercentageRule(threshold float64) *rulesmodels.ApprovalRule {
	return s.addRule(&rulesmodels.ApprovalRule{
		Name: "finance quorum",
		Kind: id.RuleKindPercentage,
		Percentage: &rulesmodels.PercentageConfig{
			Threshold: threshold,
			Pool:      []rulesmodels.ApproverRef{"finance"},
		},
		Active: true,
	})
}

func (s *WorkflowSuite) submit() *claimsmodels.ExpenseClaim {
	claim, err := s.svc.SubmitClaim(s.ctx, SubmitParams{
		SubmitterID: s.submitter.ID,
		AmountCents: 12_500,
		Category:    id.CategoryTravel,
		Department:  "engineering",
		Description: "conference travel",
	})
	s.Require().NoError(err)
	return claim
}

func (s *WorkflowSuite) auditActions() []audit.Action {
	var actions []audit.Action
	for _, e := range s.auditLog.All() {
		actions = append(actions, e.Action)
	}
	return actions
}

// =============================================================================
// Submission and opening
// =============================================================================

func (s *WorkflowSuite) TestSubmitClaimOpensWithResolvedApprovers() {
	s.addPercentageRule(0.5)
	claim := s.submit()

	s.Equal(id.ClaimStatePendingApproval, claim.State)
	s.Len(claim.PoolApprovers, 3)
	s.Len(claim.AssignedApprovers, 3)
	s.Empty(claim.RequiredApprovers)
	s.Equal([]audit.Action{audit.ActionClaimSubmitted, audit.ActionClaimOpened}, s.auditActions())
}

func (s *WorkflowSuite) TestSubmitClaimWithoutMatchingRule() {
	_, err := s.svc.SubmitClaim(s.ctx, SubmitParams{
		SubmitterID: s.submitter.ID,
		AmountCents: 100,
		Category:    id.CategoryOther,
		Department:  "engineering",
	})
	s.True(dErrors.Is(err, dErrors.CodeNoMatchingRule))
}

func (s *WorkflowSuite) TestSubmitClaimSnapshotSurvivesRuleEdit() {
	rule := s.addPercentageRule(0.5)
	claim := s.submit()

	// Deactivate the rule after submission; the claim keeps evaluating under
	// its frozen snapshot.
	stored, err := s.rules.FindByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	stored.Active = false
	stored.Version = 2
	s.Require().NoError(s.rules.Update(s.ctx, stored, 1))

	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)

	got, err := s.svc.Get(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, got.State)
}

func (s *WorkflowSuite) TestOpenTwiceFails() {
	s.addPercentageRule(0.5)
	claim := s.submit()

	_, err := s.svc.Open(s.ctx, claim.ID)
	s.True(dErrors.Is(err, dErrors.CodeAlreadyOpen))
}

func (s *WorkflowSuite) TestRuleResolvingToNobodyBlocksOpening() {
	// RefManager resolves to nothing when the submitter has no manager.
	s.addRule(&rulesmodels.ApprovalRule{
		Name: "manager signs off",
		Kind: id.RuleKindSpecific,
		Specific: &rulesmodels.SpecificConfig{
			Approvers: []rulesmodels.ApproverRef{rulesmodels.RefManager},
		},
		Active: true,
	})

	_, err := s.svc.SubmitClaim(s.ctx, SubmitParams{
		SubmitterID: s.submitter.ID,
		AmountCents: 100,
		Category:    id.CategoryMeals,
		Department:  "engineering",
	})
	s.True(dErrors.Is(err, dErrors.CodeInvariantViolation))
}

// =============================================================================
// Decision recording
// =============================================================================

func (s *WorkflowSuite) TestQuorumApproval() {
	s.addPercentageRule(0.5)
	claim := s.submit()

	got, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	s.Equal(id.ClaimStatePendingApproval, got.State)

	got, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionApprove, "looks right")
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, got.State)
	s.NotNil(got.ResolvedAt)
}

func (s *WorkflowSuite) TestShortCircuitRejection() {
	// Threshold 0.5 over three approvers: approve, reject, reject walks the
	// quorum from reachable to impossible.
	s.addPercentageRule(0.5)
	claim := s.submit()

	_, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	got, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionReject, "")
	s.Require().NoError(err)
	s.Equal(id.ClaimStatePendingApproval, got.State, "two of three can still approve")

	got, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[2].ApproverID(), id.DecisionReject, "")
	s.Require().NoError(err)
	s.Equal(id.ClaimStateRejected, got.State)
}

func (s *WorkflowSuite) TestUnauthorizedApproverIsNeverRecorded() {
	s.addPercentageRule(0.5)
	claim := s.submit()

	_, err := s.svc.RecordDecision(s.ctx, claim.ID, s.cfo.ApproverID(), id.DecisionApprove, "")
	s.True(dErrors.Is(err, dErrors.CodeUnauthorizedApprover))

	trail, err := s.svc.Ledger(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Empty(trail)
}

func (s *WorkflowSuite) TestLateDecisionReportsClaimClosed() {
	s.addPercentageRule(0.5)
	claim := s.submit()

	_, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)

	// The identical call again, and a fresh vote, both land after terminal.
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionApprove, "")
	s.True(dErrors.Is(err, dErrors.CodeClaimClosed))
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[2].ApproverID(), id.DecisionReject, "")
	s.True(dErrors.Is(err, dErrors.CodeClaimClosed))

	got, err := s.svc.Get(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, got.State)

	trail, err := s.svc.Ledger(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Len(trail, 2, "late decisions never reach the ledger")

	actions := s.auditActions()
	s.Equal(audit.ActionLateDecisionIgnored, actions[len(actions)-1])
}

func (s *WorkflowSuite) TestRevisedDecisionSupersedes() {
	s.addPercentageRule(1.0)
	claim := s.submit()

	_, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[1].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)

	status, err := s.svc.Status(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal([]id.ApproverID{s.finance[2].ApproverID()}, status.PendingApprovers)

	// Revise fin1's vote: still two active approvals, claim stays open.
	_, err = s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "double checked")
	s.Require().NoError(err)

	trail, err := s.svc.Ledger(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Len(trail, 3, "superseded decisions stay in the ledger")

	s.Contains(s.auditActions(), audit.ActionDecisionSuperseded)
}

func (s *WorkflowSuite) TestSpecificVetoWithHybridRule() {
	s.addRule(&rulesmodels.ApprovalRule{
		Name: "quorum and cfo",
		Kind: id.RuleKindHybrid,
		Hybrid: &rulesmodels.HybridConfig{
			Threshold:  0.5,
			Pool:       []rulesmodels.ApproverRef{"finance"},
			Approvers:  []rulesmodels.ApproverRef{rulesmodels.ApproverRef(s.cfo.ID.String())},
			Combinator: id.CombinatorAnd,
		},
		Active: true,
	})
	claim := s.submit()
	s.Len(claim.AssignedApprovers, 4)

	got, err := s.svc.RecordDecision(s.ctx, claim.ID, s.cfo.ApproverID(), id.DecisionReject, "over budget")
	s.Require().NoError(err)
	s.Equal(id.ClaimStateRejected, got.State)
}

// =============================================================================
// Status projection
// =============================================================================

func (s *WorkflowSuite) TestStatusProjection() {
	s.addPercentageRule(1.0)
	claim := s.submit()

	_, err := s.svc.RecordDecision(s.ctx, claim.ID, s.finance[0].ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)

	status, err := s.svc.Status(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStatePendingApproval, status.State)
	s.Len(status.Decisions, 1)
	s.ElementsMatch([]id.ApproverID{s.finance[1].ApproverID(), s.finance[2].ApproverID()}, status.PendingApprovers)
}

func (s *WorkflowSuite) TestStatusUnknownClaim() {
	_, err := s.svc.Status(s.ctx, id.NewClaimID())
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *WorkflowSuite) TestConcurrentApprovalsSingleTerminalTransition() {
	// N required approvers all approve concurrently: exactly one terminal
	// transition, all N decisions in the ledger.
	refs := make([]rulesmodels.ApproverRef, 0, len(s.finance))
	for _, u := range s.finance {
		refs = append(refs, rulesmodels.ApproverRef(u.ID.String()))
	}
	s.addRule(&rulesmodels.ApprovalRule{
		Name:     "all of finance",
		Kind:     id.RuleKindSpecific,
		Specific: &rulesmodels.SpecificConfig{Approvers: refs},
		Active:   true,
	})
	claim := s.submit()

	var g errgroup.Group
	for _, u := range s.finance {
		approver := u.ApproverID()
		g.Go(func() error {
			_, err := s.svc.RecordDecision(s.ctx, claim.ID, approver, id.DecisionApprove, "")
			return err
		})
	}
	s.Require().NoError(g.Wait())

	got, err := s.svc.Get(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, got.State)

	trail, err := s.svc.Ledger(s.ctx, claim.ID)
	s.Require().NoError(err)
	s.Len(trail, len(s.finance))

	terminalEvents := 0
	for _, e := range s.auditLog.All() {
		if e.Action == audit.ActionClaimApproved || e.Action == audit.ActionClaimRejected {
			terminalEvents++
		}
	}
	s.Equal(1, terminalEvents)
}
