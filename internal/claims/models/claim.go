// Package models defines the expense claim aggregate and its decision ledger
// entries.
package models

import (
	"time"

	rulesmodels "expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
)

// ExpenseClaim is the subject of approval.
//
// Invariants:
//   - RuleSnapshot is frozen at submission time: later rule edits and
//     deactivations never change how this claim evaluates.
//   - AssignedApprovers, PoolApprovers, and RequiredApprovers are resolved
//     once, when the claim opens, and never re-resolved.
//   - Once State is terminal the claim is immutable for decision purposes.
type ExpenseClaim struct {
	ID          id.ClaimID         `json:"id"`
	SubmitterID id.UserID          `json:"submitter_id"`
	AmountCents int64              `json:"amount_cents"`
	Category    id.ExpenseCategory `json:"category"`
	Department  string             `json:"department"`
	Description string             `json:"description"`

	State id.ClaimState `json:"state"`

	// RuleSnapshot is the matched rule as it looked at submission time.
	RuleSnapshot rulesmodels.ApprovalRule `json:"rule_snapshot"`

	// AssignedApprovers is everyone allowed to decide this claim: the union
	// of the resolved voting pool and the resolved required approvers.
	AssignedApprovers []id.ApproverID `json:"assigned_approvers"`
	// PoolApprovers is the resolved voting pool, the denominator of the
	// percentage quorum.
	PoolApprovers []id.ApproverID `json:"pool_approvers"`
	// RequiredApprovers is the resolved must-approve set for specific and
	// hybrid rules. Empty for percentage rules.
	RequiredApprovers []id.ApproverID `json:"required_approvers"`

	// NextSeq is the sequence number the ledger assigns to the next decision.
	NextSeq int64 `json:"-"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Attributes projects the fields rule scopes match on.
func (c *ExpenseClaim) Attributes() rulesmodels.ClaimAttributes {
	return rulesmodels.ClaimAttributes{
		AmountCents: c.AmountCents,
		Category:    c.Category,
		Department:  c.Department,
	}
}

// HasApprover reports whether the given approver may decide this claim.
func (c *ExpenseClaim) HasApprover(approverID id.ApproverID) bool {
	for _, a := range c.AssignedApprovers {
		if a == approverID {
			return true
		}
	}
	return false
}

// ApprovalDecision is one approver's recorded action on a claim.
//
// At most one decision per (claim, approver) is active: a later decision from
// the same approver supersedes the earlier one for evaluation, but the
// superseded row stays in the ledger for audit.
type ApprovalDecision struct {
	ClaimID    id.ClaimID         `json:"claim_id"`
	Seq        int64              `json:"sequence_number"`
	ApproverID id.ApproverID      `json:"approver_id"`
	Outcome    id.DecisionOutcome `json:"outcome"`
	Comment    string             `json:"comment,omitempty"`
	DecidedAt  time.Time          `json:"decided_at"`
}
