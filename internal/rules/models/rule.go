// Package models defines the approval rule aggregate.
package models

import (
	"time"

	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

// ApproverRef references an approver in rule configuration: either a concrete
// user ID, a role name ("finance", "director"), or the special reference
// "manager" meaning the claim submitter's manager. The directory resolves
// refs to concrete approver IDs when a claim is opened.
type ApproverRef string

// RefManager resolves to the claim submitter's direct manager.
const RefManager ApproverRef = "manager"

func (r ApproverRef) String() string { return string(r) }

// Scope is the predicate that decides which claims a rule applies to.
// An empty scope matches every claim.
type Scope struct {
	// MinAmountCents: claims at or above this amount match. Zero matches all.
	MinAmountCents int64 `json:"min_amount_cents,omitempty"`
	// Categories: claim category must be one of these. Empty matches all.
	Categories []id.ExpenseCategory `json:"categories,omitempty"`
	// Departments: claim department must be one of these. Empty matches all.
	Departments []string `json:"departments,omitempty"`
}

// ClaimAttributes are the claim fields a scope predicate can see. Declared
// here so the matcher does not depend on the claims package.
type ClaimAttributes struct {
	AmountCents int64
	Category    id.ExpenseCategory
	Department  string
}

// Matches reports whether the claim attributes satisfy every constraint.
func (s Scope) Matches(attrs ClaimAttributes) bool {
	if s.MinAmountCents > 0 && attrs.AmountCents < s.MinAmountCents {
		return false
	}
	if len(s.Categories) > 0 && !containsCategory(s.Categories, attrs.Category) {
		return false
	}
	if len(s.Departments) > 0 && !containsString(s.Departments, attrs.Department) {
		return false
	}
	return true
}

// Specificity counts the non-empty constraints. The matcher prefers rules
// with more constrained scopes when several rules match one claim.
func (s Scope) Specificity() int {
	n := 0
	if s.MinAmountCents > 0 {
		n++
	}
	if len(s.Categories) > 0 {
		n++
	}
	if len(s.Departments) > 0 {
		n++
	}
	return n
}

// PercentageConfig carries the configuration a percentage rule needs:
// the quorum fraction and the voting pool.
type PercentageConfig struct {
	// Threshold is the required fraction of assigned approvers in (0, 1].
	Threshold float64 `json:"threshold"`
	// Pool references the approvers whose votes count toward the quorum.
	Pool []ApproverRef `json:"pool"`
}

// SpecificConfig carries the configuration a specific-approver rule needs.
type SpecificConfig struct {
	// Approvers must each approve; any one rejecting vetoes the claim.
	Approvers []ApproverRef `json:"approvers"`
}

// HybridConfig combines a percentage condition and a specific-approver
// condition with a combinator.
type HybridConfig struct {
	Threshold  float64       `json:"threshold"`
	Pool       []ApproverRef `json:"pool"`
	Approvers  []ApproverRef `json:"approvers"`
	Combinator id.Combinator `json:"combinator"`
}

// ApprovalRule is the configuration aggregate an administrator manages.
//
// The rule is a tagged variant: Kind selects which config is set, and exactly
// that config must be non-nil. This makes invalid shapes (a specific rule
// carrying a threshold, a percentage rule with no pool) unrepresentable once
// Validate has passed.
//
// Invariants:
//   - Version increases monotonically with each edit.
//   - Rules referenced by in-flight claims are never mutated: claims freeze a
//     snapshot at submission time, so edits only affect future claims.
type ApprovalRule struct {
	ID          id.RuleID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        id.RuleKind `json:"kind"`
	Scope       Scope       `json:"scope"`

	Percentage *PercentageConfig `json:"percentage,omitempty"`
	Specific   *SpecificConfig   `json:"specific,omitempty"`
	Hybrid     *HybridConfig     `json:"hybrid,omitempty"`

	Active    bool      `json:"active"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hold or mutate the result without
// aliasing the original's slices and configs.
func (r *ApprovalRule) Clone() *ApprovalRule {
	out := *r
	out.Scope.Categories = append([]id.ExpenseCategory(nil), r.Scope.Categories...)
	out.Scope.Departments = append([]string(nil), r.Scope.Departments...)
	if r.Percentage != nil {
		cfg := *r.Percentage
		cfg.Pool = append([]ApproverRef(nil), r.Percentage.Pool...)
		out.Percentage = &cfg
	}
	if r.Specific != nil {
		cfg := *r.Specific
		cfg.Approvers = append([]ApproverRef(nil), r.Specific.Approvers...)
		out.Specific = &cfg
	}
	if r.Hybrid != nil {
		cfg := *r.Hybrid
		cfg.Pool = append([]ApproverRef(nil), r.Hybrid.Pool...)
		cfg.Approvers = append([]ApproverRef(nil), r.Hybrid.Approvers...)
		out.Hybrid = &cfg
	}
	return &out
}

// Validate enforces the tagged-variant invariants. Malformed rules are a
// configuration error raised here, at creation/edit time, never during
// evaluation.
func (r *ApprovalRule) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "rule name is required")
	}

	switch r.Kind {
	case id.RuleKindPercentage:
		if r.Percentage == nil || r.Specific != nil || r.Hybrid != nil {
			return dErrors.New(dErrors.CodeValidation, "percentage rule must carry exactly the percentage config")
		}
		if err := validateThreshold(r.Percentage.Threshold); err != nil {
			return err
		}
		if err := validateRefs(r.Percentage.Pool, "pool"); err != nil {
			return err
		}
	case id.RuleKindSpecific:
		if r.Specific == nil || r.Percentage != nil || r.Hybrid != nil {
			return dErrors.New(dErrors.CodeValidation, "specific rule must carry exactly the specific config")
		}
		if err := validateRefs(r.Specific.Approvers, "approvers"); err != nil {
			return err
		}
	case id.RuleKindHybrid:
		if r.Hybrid == nil || r.Percentage != nil || r.Specific != nil {
			return dErrors.New(dErrors.CodeValidation, "hybrid rule must carry exactly the hybrid config")
		}
		if err := validateThreshold(r.Hybrid.Threshold); err != nil {
			return err
		}
		if err := validateRefs(r.Hybrid.Pool, "pool"); err != nil {
			return err
		}
		if err := validateRefs(r.Hybrid.Approvers, "approvers"); err != nil {
			return err
		}
		if _, err := id.ParseCombinator(r.Hybrid.Combinator.String()); err != nil {
			return err
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown rule kind")
	}

	return nil
}

// Threshold returns the quorum fraction for percentage and hybrid rules.
func (r *ApprovalRule) Threshold() (float64, bool) {
	switch r.Kind {
	case id.RuleKindPercentage:
		return r.Percentage.Threshold, true
	case id.RuleKindHybrid:
		return r.Hybrid.Threshold, true
	}
	return 0, false
}

// PoolRefs returns the voting pool references for percentage and hybrid rules.
func (r *ApprovalRule) PoolRefs() []ApproverRef {
	switch r.Kind {
	case id.RuleKindPercentage:
		return r.Percentage.Pool
	case id.RuleKindHybrid:
		return r.Hybrid.Pool
	}
	return nil
}

// RequiredRefs returns the must-approve references for specific and hybrid
// rules.
func (r *ApprovalRule) RequiredRefs() []ApproverRef {
	switch r.Kind {
	case id.RuleKindSpecific:
		return r.Specific.Approvers
	case id.RuleKindHybrid:
		return r.Hybrid.Approvers
	}
	return nil
}

// Combinator returns the hybrid combinator, defaulting to AND for other kinds
// (where it is never consulted).
func (r *ApprovalRule) Combinator() id.Combinator {
	if r.Kind == id.RuleKindHybrid {
		return r.Hybrid.Combinator
	}
	return id.CombinatorAnd
}

func validateThreshold(t float64) error {
	if t <= 0 || t > 1 {
		return dErrors.New(dErrors.CodeValidation, "threshold must be a fraction in (0, 1]")
	}
	return nil
}

func validateRefs(refs []ApproverRef, field string) error {
	if len(refs) == 0 {
		return dErrors.New(dErrors.CodeValidation, field+" must not be empty")
	}
	seen := make(map[ApproverRef]bool, len(refs))
	for _, ref := range refs {
		if ref == "" {
			return dErrors.New(dErrors.CodeValidation, field+" must not contain empty references")
		}
		if seen[ref] {
			return dErrors.New(dErrors.CodeValidation, field+" must not contain duplicate references")
		}
		seen[ref] = true
	}
	return nil
}

func containsCategory(haystack []id.ExpenseCategory, needle id.ExpenseCategory) bool {
	for _, c := range haystack {
		if c == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
