package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full DDL for the service. Statements are idempotent so
// EnsureSchema can run at startup in development and in integration tests.
// Production deployments run the same DDL through their migration tooling.
const schema = `
CREATE TABLE IF NOT EXISTS approval_rules (
    id                 UUID PRIMARY KEY,
    name               TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    kind               TEXT NOT NULL,
    threshold          DOUBLE PRECISION,
    approver_pool      TEXT[],
    required_approvers TEXT[],
    combinator         TEXT,
    min_amount_cents   BIGINT NOT NULL DEFAULT 0,
    categories         TEXT[] NOT NULL DEFAULT '{}',
    departments        TEXT[] NOT NULL DEFAULT '{}',
    active             BOOLEAN NOT NULL DEFAULT TRUE,
    version            BIGINT NOT NULL DEFAULT 1,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expense_claims (
    id                 UUID PRIMARY KEY,
    submitter_id       UUID NOT NULL,
    amount_cents       BIGINT NOT NULL,
    category           TEXT NOT NULL,
    department         TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    state              TEXT NOT NULL,
    rule_snapshot      JSONB NOT NULL,
    assigned_approvers TEXT[] NOT NULL DEFAULT '{}',
    pool_approvers     TEXT[] NOT NULL DEFAULT '{}',
    required_approvers TEXT[] NOT NULL DEFAULT '{}',
    next_seq           BIGINT NOT NULL DEFAULT 1,
    submitted_at       TIMESTAMPTZ NOT NULL,
    resolved_at        TIMESTAMPTZ,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expense_claims_submitter
    ON expense_claims (submitter_id, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_expense_claims_state
    ON expense_claims (state);

CREATE TABLE IF NOT EXISTS claim_decisions (
    claim_id    UUID NOT NULL REFERENCES expense_claims (id),
    seq         BIGINT NOT NULL,
    approver_id TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    comment     TEXT NOT NULL DEFAULT '',
    decided_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (claim_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_claim_decisions_approver
    ON claim_decisions (claim_id, approver_id, seq DESC);

CREATE TABLE IF NOT EXISTS directory_users (
    id            UUID PRIMARY KEY,
    full_name     TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    department    TEXT NOT NULL,
    manager_id    UUID,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_outbox (
    position     BIGSERIAL PRIMARY KEY,
    id           UUID NOT NULL UNIQUE,
    occurred_at  TIMESTAMPTZ NOT NULL,
    action       TEXT NOT NULL,
    claim_id     TEXT NOT NULL DEFAULT '',
    rule_id      TEXT NOT NULL DEFAULT '',
    actor        TEXT NOT NULL DEFAULT '',
    payload      JSONB NOT NULL,
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_unpublished
    ON audit_outbox (position) WHERE published_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_audit_outbox_claim
    ON audit_outbox (claim_id, position);
`

// EnsureSchema applies the schema DDL.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
