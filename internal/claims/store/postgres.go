package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"expenseflow/internal/claims/models"
	rulesmodels "expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
	txcontext "expenseflow/pkg/platform/tx"
)

// Postgres persists claims in the expense_claims table. The rule snapshot is
// stored as JSONB: it is a frozen value, never queried by its fields, and the
// tagged-variant shape round-trips through the models' JSON encoding.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const claimColumns = `id, submitter_id, amount_cents, category, department,
	description, state, rule_snapshot, assigned_approvers, pool_approvers,
	required_approvers, next_seq, submitted_at, resolved_at, updated_at`

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) conn(ctx context.Context) dbConn {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, claim *models.ExpenseClaim) error {
	snapshot, err := json.Marshal(claim.RuleSnapshot)
	if err != nil {
		return fmt.Errorf("marshal rule snapshot: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO expense_claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		uuid.UUID(claim.ID), uuid.UUID(claim.SubmitterID), claim.AmountCents,
		claim.Category.String(), claim.Department, claim.Description,
		claim.State.String(), snapshot,
		pq.Array(approverStrings(claim.AssignedApprovers)),
		pq.Array(approverStrings(claim.PoolApprovers)),
		pq.Array(approverStrings(claim.RequiredApprovers)),
		claim.NextSeq, claim.SubmittedAt, claim.ResolvedAt, claim.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM expense_claims WHERE id = $1`,
		uuid.UUID(claimID),
	)
	return scanClaim(row)
}

// GetForUpdate reads the claim with a row lock so the append-evaluate-
// transition critical section holds across instances, not just goroutines.
func (s *Postgres) GetForUpdate(ctx context.Context, claimID id.ClaimID) (*models.ExpenseClaim, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM expense_claims WHERE id = $1 FOR UPDATE`,
		uuid.UUID(claimID),
	)
	return scanClaim(row)
}

func (s *Postgres) Update(ctx context.Context, claim *models.ExpenseClaim) error {
	snapshot, err := json.Marshal(claim.RuleSnapshot)
	if err != nil {
		return fmt.Errorf("marshal rule snapshot: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE expense_claims
		SET state = $2, rule_snapshot = $3, assigned_approvers = $4,
		    pool_approvers = $5, required_approvers = $6,
		    resolved_at = $7, updated_at = $8
		WHERE id = $1
	`,
		uuid.UUID(claim.ID), claim.State.String(), snapshot,
		pq.Array(approverStrings(claim.AssignedApprovers)),
		pq.Array(approverStrings(claim.PoolApprovers)),
		pq.Array(approverStrings(claim.RequiredApprovers)),
		claim.ResolvedAt, claim.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update claim rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListBySubmitter(ctx context.Context, submitterID id.UserID) ([]*models.ExpenseClaim, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+claimColumns+` FROM expense_claims
		WHERE submitter_id = $1
		ORDER BY submitted_at DESC, id`,
		uuid.UUID(submitterID),
	)
	if err != nil {
		return nil, fmt.Errorf("list claims by submitter: %w", err)
	}
	return collectClaims(rows)
}

func (s *Postgres) ListPendingForApprover(ctx context.Context, approverID id.ApproverID) ([]*models.ExpenseClaim, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+claimColumns+` FROM expense_claims
		WHERE state = $1 AND $2 = ANY(assigned_approvers)
		ORDER BY submitted_at DESC, id`,
		id.ClaimStatePendingApproval.String(), approverID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending claims: %w", err)
	}
	return collectClaims(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.ExpenseClaim, error) {
	var (
		claim     models.ExpenseClaim
		claimID   uuid.UUID
		submitter uuid.UUID
		category  string
		state     string
		snapshot  []byte
		assigned  pq.StringArray
		pool      pq.StringArray
		required  pq.StringArray
	)
	err := row.Scan(
		&claimID, &submitter, &claim.AmountCents, &category, &claim.Department,
		&claim.Description, &state, &snapshot, &assigned, &pool, &required,
		&claim.NextSeq, &claim.SubmittedAt, &claim.ResolvedAt, &claim.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}

	claim.ID = id.ClaimID(claimID)
	claim.SubmitterID = id.UserID(submitter)
	claim.Category = id.ExpenseCategory(category)
	claim.State = id.ClaimState(state)
	claim.AssignedApprovers = toApproverIDs(assigned)
	claim.PoolApprovers = toApproverIDs(pool)
	claim.RequiredApprovers = toApproverIDs(required)

	var rule rulesmodels.ApprovalRule
	if err := json.Unmarshal(snapshot, &rule); err != nil {
		return nil, fmt.Errorf("unmarshal rule snapshot: %w", err)
	}
	claim.RuleSnapshot = rule
	return &claim, nil
}

func collectClaims(rows *sql.Rows) ([]*models.ExpenseClaim, error) {
	defer rows.Close()
	var claims []*models.ExpenseClaim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func approverStrings(ids []id.ApproverID) []string {
	out := make([]string, len(ids))
	for i, a := range ids {
		out[i] = a.String()
	}
	return out
}

func toApproverIDs(raw []string) []id.ApproverID {
	out := make([]id.ApproverID, len(raw))
	for i, s := range raw {
		out[i] = id.ApproverID(s)
	}
	return out
}

// isUniqueViolation matches the pgx driver's duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
