// Package matcher selects the applicable approval rule for a claim.
package matcher

import (
	"sort"

	"expenseflow/internal/rules/models"
	dErrors "expenseflow/pkg/domain-errors"
)

// Match selects the rule that governs a claim with the given attributes.
//
// Selection is deterministic and a policy choice, not derivable from the rule
// set alone:
//  1. inactive rules never match
//  2. among matching rules, the most specific scope wins (more constrained
//     predicates outrank broader ones)
//  3. remaining ties break on the lexicographically lowest rule ID
//
// Returns CodeNoMatchingRule when no active rule matches; the caller treats
// that as a hard stop and surfaces the claim to an administrator.
func Match(attrs models.ClaimAttributes, rules []*models.ApprovalRule) (*models.ApprovalRule, error) {
	var matched []*models.ApprovalRule
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if rule.Scope.Matches(attrs) {
			matched = append(matched, rule)
		}
	}

	if len(matched) == 0 {
		return nil, dErrors.New(dErrors.CodeNoMatchingRule, "no active approval rule matches this claim")
	}

	sort.Slice(matched, func(i, j int) bool {
		si, sj := matched[i].Scope.Specificity(), matched[j].Scope.Specificity()
		if si != sj {
			return si > sj
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	return matched[0], nil
}
