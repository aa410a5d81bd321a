package domain

import dErrors "expenseflow/pkg/domain-errors"

// DecisionOutcome is a single approver's verdict on a claim.
type DecisionOutcome string

const (
	DecisionApprove DecisionOutcome = "approve"
	DecisionReject  DecisionOutcome = "reject"
)

// ParseDecisionOutcome constructs a DecisionOutcome from external input.
func ParseDecisionOutcome(s string) (DecisionOutcome, error) {
	o := DecisionOutcome(s)
	if o != DecisionApprove && o != DecisionReject {
		return "", errInvalidEnum("decision outcome", s)
	}
	return o, nil
}

func (o DecisionOutcome) String() string { return string(o) }

// errInvalidEnum builds a consistent invalid-input error for enum parsing.
func errInvalidEnum(what, got string) error {
	if got == "" {
		return dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	return dErrors.New(dErrors.CodeInvalidInput, "invalid "+what+": "+got)
}
