package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
)

type InMemoryLedgerSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *InMemory
}

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLedgerSuite))
}

func (s *InMemoryLedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = NewInMemory()
}

func (s *InMemoryLedgerSuite) append(claimID id.ClaimID, approver string, outcome id.DecisionOutcome) int64 {
	seq, err := s.ledger.Append(s.ctx, models.ApprovalDecision{
		ClaimID:    claimID,
		ApproverID: id.ApproverID(approver),
		Outcome:    outcome,
	})
	s.Require().NoError(err)
	return seq
}

func (s *InMemoryLedgerSuite) TestSequenceNumbersAreMonotonicPerClaim() {
	claimA, claimB := id.NewClaimID(), id.NewClaimID()

	s.Equal(int64(1), s.append(claimA, "x", id.DecisionApprove))
	s.Equal(int64(2), s.append(claimA, "y", id.DecisionReject))
	// A different claim has its own counter.
	s.Equal(int64(1), s.append(claimB, "x", id.DecisionApprove))
}

func (s *InMemoryLedgerSuite) TestLaterDecisionSupersedesForEvaluation() {
	claimID := id.NewClaimID()
	s.append(claimID, "x", id.DecisionReject)
	s.append(claimID, "x", id.DecisionApprove)

	active, err := s.ledger.ActiveDecisions(s.ctx, claimID)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(id.DecisionApprove, active[id.ApproverID("x")].Outcome)
	s.Equal(int64(2), active[id.ApproverID("x")].Seq)

	// The superseded row stays in the full trail.
	all, err := s.ledger.ListByClaim(s.ctx, claimID)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(id.DecisionReject, all[0].Outcome)
	s.Equal(id.DecisionApprove, all[1].Outcome)
}

func (s *InMemoryLedgerSuite) TestEmptyClaim() {
	claimID := id.NewClaimID()
	active, err := s.ledger.ActiveDecisions(s.ctx, claimID)
	s.Require().NoError(err)
	s.Empty(active)

	all, err := s.ledger.ListByClaim(s.ctx, claimID)
	s.Require().NoError(err)
	s.Empty(all)
}
