package handler

import (
	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

type scopePayload struct {
	MinAmountCents int64    `json:"min_amount_cents"`
	Categories     []string `json:"categories"`
	Departments    []string `json:"departments"`
}

type percentagePayload struct {
	Threshold float64  `json:"threshold"`
	Pool      []string `json:"pool"`
}

type specificPayload struct {
	Approvers []string `json:"approvers"`
}

type hybridPayload struct {
	Threshold  float64  `json:"threshold"`
	Pool       []string `json:"pool"`
	Approvers  []string `json:"approvers"`
	Combinator string   `json:"combinator"`
}

// ruleRequest is shared between create and update. Validate parses the wire
// payload into a domain rule; the parsed form is cached for the handler.
type ruleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Kind        string             `json:"kind"`
	Scope       scopePayload       `json:"scope"`
	Percentage  *percentagePayload `json:"percentage,omitempty"`
	Specific    *specificPayload   `json:"specific,omitempty"`
	Hybrid      *hybridPayload     `json:"hybrid,omitempty"`
	Active      *bool              `json:"active,omitempty"`

	// ExpectedVersion is only honored on updates.
	ExpectedVersion int64 `json:"expected_version,omitempty"`

	rule *models.ApprovalRule
}

func (req *ruleRequest) Validate() error {
	kind, err := id.ParseRuleKind(req.Kind)
	if err != nil {
		return err
	}
	scope, err := req.Scope.toModel()
	if err != nil {
		return err
	}

	rule := &models.ApprovalRule{
		Name:        req.Name,
		Description: req.Description,
		Kind:        kind,
		Scope:       scope,
		Active:      true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if req.Percentage != nil {
		rule.Percentage = &models.PercentageConfig{
			Threshold: req.Percentage.Threshold,
			Pool:      toRefs(req.Percentage.Pool),
		}
	}
	if req.Specific != nil {
		rule.Specific = &models.SpecificConfig{
			Approvers: toRefs(req.Specific.Approvers),
		}
	}
	if req.Hybrid != nil {
		combinator, err := id.ParseCombinator(req.Hybrid.Combinator)
		if err != nil {
			return err
		}
		rule.Hybrid = &models.HybridConfig{
			Threshold:  req.Hybrid.Threshold,
			Pool:       toRefs(req.Hybrid.Pool),
			Approvers:  toRefs(req.Hybrid.Approvers),
			Combinator: combinator,
		}
	}

	if err := rule.Validate(); err != nil {
		return err
	}
	req.rule = rule
	return nil
}

func (p scopePayload) toModel() (models.Scope, error) {
	if p.MinAmountCents < 0 {
		return models.Scope{}, dErrors.New(dErrors.CodeValidation, "min_amount_cents must not be negative")
	}
	scope := models.Scope{
		MinAmountCents: p.MinAmountCents,
		Departments:    p.Departments,
	}
	for _, raw := range p.Categories {
		category, err := id.ParseExpenseCategory(raw)
		if err != nil {
			return models.Scope{}, err
		}
		scope.Categories = append(scope.Categories, category)
	}
	return scope, nil
}

func toRefs(raw []string) []models.ApproverRef {
	refs := make([]models.ApproverRef, 0, len(raw))
	for _, r := range raw {
		refs = append(refs, models.ApproverRef(r))
	}
	return refs
}
