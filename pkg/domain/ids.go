// Package domain holds the shared domain vocabulary: typed identifiers and
// closed enumerations used across module boundaries.
//
// Typed IDs prevent cross-type assignment (a ClaimID can never be passed where
// a RuleID is expected) and force parsing at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "expenseflow/pkg/domain-errors"
)

// ClaimID uniquely identifies an expense claim.
type ClaimID uuid.UUID

// NewClaimID generates a random claim ID.
func NewClaimID() ClaimID {
	return ClaimID(uuid.New())
}

// ParseClaimID constructs a ClaimID from external input.
// Errors: returns CodeInvalidInput when the value is not a valid UUID.
func ParseClaimID(s string) (ClaimID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ClaimID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid claim id")
	}
	return ClaimID(u), nil
}

func (id ClaimID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id ClaimID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText implements encoding.TextMarshaler so the ID serializes as its
// canonical UUID string rather than a byte array.
func (id ClaimID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ClaimID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = ClaimID(u)
	return nil
}

// RuleID uniquely identifies an approval rule.
type RuleID uuid.UUID

// NewRuleID generates a random rule ID.
func NewRuleID() RuleID {
	return RuleID(uuid.New())
}

// ParseRuleID constructs a RuleID from external input.
// Errors: returns CodeInvalidInput when the value is not a valid UUID.
func ParseRuleID(s string) (RuleID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RuleID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid rule id")
	}
	return RuleID(u), nil
}

func (id RuleID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id RuleID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id RuleID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RuleID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = RuleID(u)
	return nil
}

// UserID uniquely identifies a directory user.
type UserID uuid.UUID

// NewUserID generates a random user ID.
func NewUserID() UserID {
	return UserID(uuid.New())
}

// ParseUserID constructs a UserID from external input.
// Errors: returns CodeInvalidInput when the value is not a valid UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid user id")
	}
	return UserID(u), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

// ApproverID identifies a concrete approver on a claim. It is string-backed
// rather than UUID-backed because assigned approvers come back from the
// directory already resolved, and synthetic system approvers (an external
// escalation scheduler, for example) are not directory users.
type ApproverID string

// ParseApproverID constructs an ApproverID from external input.
// Errors: returns CodeInvalidInput when the value is empty.
func ParseApproverID(s string) (ApproverID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "approver id cannot be empty")
	}
	return ApproverID(s), nil
}

func (id ApproverID) String() string { return string(id) }

// IsZero reports whether the ID is empty.
func (id ApproverID) IsZero() bool { return id == "" }
