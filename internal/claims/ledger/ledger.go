// Package ledger owns decision sequencing. Appends are strictly ordered per
// claim, every decision ever recorded is retained, and the active view keeps
// only the latest decision per approver (a newer decision supersedes the
// older one for evaluation while the old row stays behind for audit).
package ledger

import (
	"context"

	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
)

// Ledger is the decision ledger contract.
type Ledger interface {
	// Append assigns the next sequence number for the claim and records the
	// decision. The returned value is the assigned sequence number.
	Append(ctx context.Context, decision models.ApprovalDecision) (int64, error)

	// ActiveDecisions returns the latest decision per approver for a claim.
	ActiveDecisions(ctx context.Context, claimID id.ClaimID) (map[id.ApproverID]models.ApprovalDecision, error)

	// ListByClaim returns every decision ever appended for a claim, in
	// sequence order, superseded rows included.
	ListByClaim(ctx context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error)
}

// activeView folds a sequence-ordered decision list into the latest decision
// per approver. Shared by the implementations.
func activeView(decisions []models.ApprovalDecision) map[id.ApproverID]models.ApprovalDecision {
	active := make(map[id.ApproverID]models.ApprovalDecision, len(decisions))
	for _, d := range decisions {
		active[d.ApproverID] = d
	}
	return active
}
