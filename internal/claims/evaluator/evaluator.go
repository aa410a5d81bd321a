// Package evaluator decides whether a claim's active decisions satisfy its
// rule snapshot. Evaluation is pure: it reads the claim and the active
// decision set and returns a verdict, and the workflow applies any state
// change.
package evaluator

import (
	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
)

// Result is the evaluator's verdict on a claim.
type Result string

const (
	ResultPending  Result = "pending"
	ResultApproved Result = "approved"
	ResultRejected Result = "rejected"
)

// Evaluate runs the claim's rule snapshot against the active decisions,
// keyed by approver. A well-formed snapshot cannot fail evaluation; malformed
// rules are rejected at configuration time.
func Evaluate(claim *models.ExpenseClaim, active map[id.ApproverID]id.DecisionOutcome) Result {
	switch claim.RuleSnapshot.Kind {
	case id.RuleKindPercentage:
		return evaluateQuorum(claim, active)
	case id.RuleKindSpecific:
		return evaluateRequired(claim.RequiredApprovers, active)
	case id.RuleKindHybrid:
		return combine(
			evaluateQuorum(claim, active),
			evaluateRequired(claim.RequiredApprovers, active),
			claim.RuleSnapshot.Combinator(),
		)
	}
	// Unreachable for validated snapshots; treat an unknown kind as pending
	// rather than inventing a terminal verdict.
	return ResultPending
}

// evaluateQuorum checks the percentage condition over the resolved voting
// pool. The claim rejects early once the unresolved voters can no longer
// carry the quorum: the outcome is mathematically determined, so waiting for
// the remaining votes changes nothing.
func evaluateQuorum(claim *models.ExpenseClaim, active map[id.ApproverID]id.DecisionOutcome) Result {
	threshold, ok := claim.RuleSnapshot.Threshold()
	if !ok || len(claim.PoolApprovers) == 0 {
		return ResultPending
	}

	var approveCount, rejectCount int
	for _, approver := range claim.PoolApprovers {
		switch active[approver] {
		case id.DecisionApprove:
			approveCount++
		case id.DecisionReject:
			rejectCount++
		}
	}

	n := len(claim.PoolApprovers)
	if float64(approveCount)/float64(n) >= threshold {
		return ResultApproved
	}
	unresolved := n - approveCount - rejectCount
	if rejectCount > 0 && float64(approveCount+unresolved)/float64(n) < threshold {
		return ResultRejected
	}
	return ResultPending
}

// evaluateRequired checks the specific-approver condition: a single reject
// from any required approver vetoes, approval needs every one of them.
// Decisions from anyone outside the required set stay in the ledger but do
// not move this condition.
func evaluateRequired(required []id.ApproverID, active map[id.ApproverID]id.DecisionOutcome) Result {
	if len(required) == 0 {
		return ResultPending
	}
	allApproved := true
	for _, approver := range required {
		switch active[approver] {
		case id.DecisionReject:
			return ResultRejected
		case id.DecisionApprove:
		default:
			allApproved = false
		}
	}
	if allApproved {
		return ResultApproved
	}
	return ResultPending
}

// combine merges the quorum and required sub-verdicts for hybrid rules.
func combine(quorum, required Result, combinator id.Combinator) Result {
	switch combinator {
	case id.CombinatorAnd:
		if quorum == ResultRejected || required == ResultRejected {
			return ResultRejected
		}
		if quorum == ResultApproved && required == ResultApproved {
			return ResultApproved
		}
	case id.CombinatorOr:
		if quorum == ResultApproved || required == ResultApproved {
			return ResultApproved
		}
		if quorum == ResultRejected && required == ResultRejected {
			return ResultRejected
		}
	}
	return ResultPending
}
