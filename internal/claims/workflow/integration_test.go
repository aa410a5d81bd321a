//go:build integration

package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"expenseflow/internal/audit"
	auditpg "expenseflow/internal/audit/store/postgres"
	"expenseflow/internal/claims/ledger"
	claimstore "expenseflow/internal/claims/store"
	"expenseflow/internal/directory"
	rulesmodels "expenseflow/internal/rules/models"
	rulestore "expenseflow/internal/rules/store"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/testutil/containers"
)

// WorkflowPostgresSuite drives the full claim lifecycle through the real
// Postgres stores, the SQL transactor, and the Redis status cache.
type WorkflowPostgresSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	redis *containers.RedisContainer

	rules   *rulestore.Postgres
	users   *directory.Postgres
	outbox  *auditpg.Store
	service *Service

	submitter *directory.User
	alice     *directory.User
	bob       *directory.User
}

func TestWorkflowPostgresSuite(t *testing.T) {
	suite.Run(t, new(WorkflowPostgresSuite))
}

func (s *WorkflowPostgresSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.redis = containers.GetManager().GetRedis(s.T())

	s.rules = rulestore.NewPostgres(s.pg.DB)
	s.users = directory.NewPostgres(s.pg.DB)
	s.outbox = auditpg.New(s.pg.DB)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = NewService(
		claimstore.NewPostgres(s.pg.DB),
		ledger.NewPostgres(s.pg.DB),
		s.rules,
		directory.NewResolver(s.users),
		audit.NewPublisher(s.outbox),
		NewSQLTransactor(s.pg.DB),
		NewRedisStatusCache(s.redis.Client, 30*time.Second),
		nil,
		logger,
	)
}

func (s *WorkflowPostgresSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.TruncateTables(ctx,
		"claim_decisions", "expense_claims", "approval_rules", "directory_users", "audit_outbox"))
	s.Require().NoError(s.redis.FlushAll(ctx))

	s.submitter = s.seedUser("sam submitter", id.RoleEmployee)
	s.alice = s.seedUser("alice finance", id.RoleFinance)
	s.bob = s.seedUser("bob finance", id.RoleFinance)
	s.seedPercentageRule(1.0)
}

func (s *WorkflowPostgresSuite) seedUser(name string, role id.Role) *directory.User {
	user := &directory.User{
		ID:           id.NewUserID(),
		FullName:     name,
		Email:        name + "@example.test",
		Role:         role,
		Department:   "engineering",
		PasswordHash: "irrelevant",
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(s.users.Create(context.Background(), user))
	return user
}

func (s *WorkflowPostgresSuite) seedPercentageRule(threshold float64) {
	now := time.Now().UTC()
	rule := &rulesmodels.ApprovalRule{
		ID:   id.NewRuleID(),
		Name: "finance quorum",
		Kind: id.RuleKindPercentage,
		Percentage: &rulesmodels.PercentageConfig{
			Threshold: threshold,
			Pool:      []rulesmodels.ApproverRef{"finance"},
		},
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.rules.Create(context.Background(), rule))
}

func (s *WorkflowPostgresSuite) submit() id.ClaimID {
	claim, err := s.service.SubmitClaim(context.Background(), SubmitParams{
		SubmitterID: s.submitter.ID,
		AmountCents: 120_000,
		Category:    id.CategoryTravel,
		Department:  "engineering",
		Description: "offsite travel",
	})
	s.Require().NoError(err)
	return claim.ID
}

func (s *WorkflowPostgresSuite) outboxActions() []audit.Action {
	events, err := s.outbox.NextUnpublished(context.Background(), 100)
	s.Require().NoError(err)
	actions := make([]audit.Action, len(events))
	for i, e := range events {
		actions[i] = e.Action
	}
	return actions
}

func (s *WorkflowPostgresSuite) TestLifecycleEndToEnd() {
	ctx := context.Background()
	claimID := s.submit()

	claim, err := s.service.Get(ctx, claimID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStatePendingApproval, claim.State)
	s.Len(claim.AssignedApprovers, 2)

	_, err = s.service.RecordDecision(ctx, claimID, s.alice.ApproverID(), id.DecisionApprove, "ok")
	s.Require().NoError(err)

	status, err := s.service.Status(ctx, claimID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStatePendingApproval, status.State)
	s.Equal([]id.ApproverID{s.bob.ApproverID()}, status.PendingApprovers)

	// The read populated the cache.
	exists, err := s.redis.Client.Exists(ctx, "expenseflow:claim:status:"+claimID.String()).Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)

	resolved, err := s.service.RecordDecision(ctx, claimID, s.bob.ApproverID(), id.DecisionApprove, "ok")
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, resolved.State)
	s.Require().NotNil(resolved.ResolvedAt)

	// The write invalidated the stale projection; the fresh read sees the
	// terminal state.
	status, err = s.service.Status(ctx, claimID)
	s.Require().NoError(err)
	s.Equal(id.ClaimStateApproved, status.State)
	s.Empty(status.PendingApprovers)
	s.Len(status.Decisions, 2)

	s.Equal([]audit.Action{
		audit.ActionClaimSubmitted,
		audit.ActionClaimOpened,
		audit.ActionDecisionRecorded,
		audit.ActionDecisionRecorded,
		audit.ActionClaimApproved,
	}, s.outboxActions())
}

func (s *WorkflowPostgresSuite) TestLateDecisionRollsBack() {
	ctx := context.Background()
	claimID := s.submit()

	_, err := s.service.RecordDecision(ctx, claimID, s.alice.ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)
	_, err = s.service.RecordDecision(ctx, claimID, s.bob.ApproverID(), id.DecisionApprove, "")
	s.Require().NoError(err)

	_, err = s.service.RecordDecision(ctx, claimID, s.alice.ApproverID(), id.DecisionReject, "changed my mind")
	s.Require().ErrorIs(err, dErrors.New(dErrors.CodeClaimClosed, ""))

	// The rejected write left no trace in the ledger, only in the audit log.
	trail, err := s.service.Ledger(ctx, claimID)
	s.Require().NoError(err)
	s.Len(trail, 2)

	actions := s.outboxActions()
	s.Equal(audit.ActionLateDecisionIgnored, actions[len(actions)-1])
}

func (s *WorkflowPostgresSuite) TestRejectionShortCircuits() {
	// Threshold 1.0 means a single rejection is unrecoverable.
	ctx := context.Background()
	claimID := s.submit()

	resolved, err := s.service.RecordDecision(ctx, claimID, s.alice.ApproverID(), id.DecisionReject, "no receipts")
	s.Require().NoError(err)
	s.Equal(id.ClaimStateRejected, resolved.State)

	actions := s.outboxActions()
	s.Equal(audit.ActionClaimRejected, actions[len(actions)-1])
}
