package domain

// ClaimState is the lifecycle state of an expense claim.
//
// Transitions: Submitted → PendingApproval → {Approved, Rejected}.
// Approved and Rejected are terminal; nothing leaves a terminal state.
type ClaimState string

const (
	ClaimStateSubmitted       ClaimState = "submitted"
	ClaimStatePendingApproval ClaimState = "pending_approval"
	ClaimStateApproved        ClaimState = "approved"
	ClaimStateRejected        ClaimState = "rejected"
)

var validClaimStates = map[ClaimState]bool{
	ClaimStateSubmitted:       true,
	ClaimStatePendingApproval: true,
	ClaimStateApproved:        true,
	ClaimStateRejected:        true,
}

// claimTransitions is the single source of truth for allowed transitions.
var claimTransitions = map[ClaimState][]ClaimState{
	ClaimStateSubmitted:       {ClaimStatePendingApproval},
	ClaimStatePendingApproval: {ClaimStateApproved, ClaimStateRejected},
	ClaimStateApproved:        {},
	ClaimStateRejected:        {},
}

// ParseClaimState constructs a ClaimState from external input.
func ParseClaimState(s string) (ClaimState, error) {
	st := ClaimState(s)
	if !validClaimStates[st] {
		return "", errInvalidEnum("claim state", s)
	}
	return st, nil
}

// IsTerminal reports whether the state admits no further transitions.
func (s ClaimState) IsTerminal() bool {
	return s == ClaimStateApproved || s == ClaimStateRejected
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ClaimState) CanTransitionTo(next ClaimState) bool {
	for _, allowed := range claimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ClaimState) String() string { return string(s) }
