// Package audit captures structured audit events for the approval engine.
// Events are append-only and transport-agnostic so stores and sinks can fan
// out; the outbox relay ships them to Kafka for downstream reporting.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names an auditable engine action.
type Action string

const (
	// Claim lifecycle events.
	ActionClaimSubmitted Action = "claim_submitted"
	ActionClaimOpened    Action = "claim_opened"
	ActionClaimApproved  Action = "claim_approved"
	ActionClaimRejected  Action = "claim_rejected"

	// Decision ledger events.
	ActionDecisionRecorded   Action = "decision_recorded"
	ActionDecisionSuperseded Action = "decision_superseded"
	// ActionLateDecisionIgnored records a decision that arrived after the
	// claim reached a terminal state. It is audit-only: the ledger and the
	// claim state are untouched.
	ActionLateDecisionIgnored Action = "late_decision_ignored"

	// Rule configuration events.
	ActionRuleCreated     Action = "rule_created"
	ActionRuleUpdated     Action = "rule_updated"
	ActionRuleDeactivated Action = "rule_deactivated"

	// Directory events.
	ActionUserCreated Action = "user_created"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`

	// Subject references. String-typed so role names and synthetic system
	// actors fit alongside UUIDs.
	ClaimID string `json:"claim_id,omitempty"`
	RuleID  string `json:"rule_id,omitempty"`
	Actor   string `json:"actor,omitempty"`

	// Decision detail for ledger events.
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// Client forensics captured by middleware.
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
