package domain

// RuleKind is the approval policy shape of a rule.
//
// Usage: construct via ParseRuleKind at trust boundaries; each kind carries
// its own required configuration, validated at rule creation time.
type RuleKind string

const (
	// RuleKindPercentage requires a quorum: a fraction of the assigned
	// approvers must approve.
	RuleKindPercentage RuleKind = "percentage"
	// RuleKindSpecific requires every named approver to approve; any one of
	// them rejecting vetoes the claim.
	RuleKindSpecific RuleKind = "specific"
	// RuleKindHybrid combines a percentage condition and a specific-approver
	// condition with a combinator.
	RuleKindHybrid RuleKind = "hybrid"
)

var validRuleKinds = map[RuleKind]bool{
	RuleKindPercentage: true,
	RuleKindSpecific:   true,
	RuleKindHybrid:     true,
}

// ParseRuleKind constructs a RuleKind from external input.
func ParseRuleKind(s string) (RuleKind, error) {
	k := RuleKind(s)
	if !validRuleKinds[k] {
		return "", errInvalidEnum("rule kind", s)
	}
	return k, nil
}

func (k RuleKind) String() string { return string(k) }

// Combinator defines how a hybrid rule's two sub-conditions combine.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// ParseCombinator constructs a Combinator from external input.
func ParseCombinator(s string) (Combinator, error) {
	c := Combinator(s)
	if c != CombinatorAnd && c != CombinatorOr {
		return "", errInvalidEnum("combinator", s)
	}
	return c, nil
}

func (c Combinator) String() string { return string(c) }
