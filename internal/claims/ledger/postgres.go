package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"expenseflow/internal/claims/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
	txcontext "expenseflow/pkg/platform/tx"
)

// Postgres persists the ledger in claim_decisions. Sequence numbers come from
// the claim row's next_seq counter: the UPDATE .. RETURNING both reserves the
// number and serializes concurrent appends on the row lock, and running it in
// the workflow's transaction makes the append atomic with the subsequent
// state transition.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Postgres) conn(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return l.db
}

func (l *Postgres) Append(ctx context.Context, decision models.ApprovalDecision) (int64, error) {
	conn := l.conn(ctx)

	var seq int64
	err := conn.QueryRowContext(ctx, `
		UPDATE expense_claims
		   SET next_seq = next_seq + 1
		 WHERE id = $1
		RETURNING next_seq - 1`,
		uuid.UUID(decision.ClaimID),
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reserve sequence number: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO claim_decisions (claim_id, seq, approver_id, outcome, comment, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(decision.ClaimID), seq, decision.ApproverID.String(),
		decision.Outcome.String(), decision.Comment, decision.DecidedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("append decision: %w", err)
	}
	return seq, nil
}

func (l *Postgres) ActiveDecisions(ctx context.Context, claimID id.ClaimID) (map[id.ApproverID]models.ApprovalDecision, error) {
	decisions, err := l.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return activeView(decisions), nil
}

func (l *Postgres) ListByClaim(ctx context.Context, claimID id.ClaimID) ([]models.ApprovalDecision, error) {
	rows, err := l.conn(ctx).QueryContext(ctx, `
		SELECT seq, approver_id, outcome, comment, decided_at
		  FROM claim_decisions
		 WHERE claim_id = $1
		 ORDER BY seq`,
		uuid.UUID(claimID),
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.ApprovalDecision
	for rows.Next() {
		d := models.ApprovalDecision{ClaimID: claimID}
		var approver, outcome string
		if err := rows.Scan(&d.Seq, &approver, &outcome, &d.Comment, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.ApproverID = id.ApproverID(approver)
		d.Outcome = id.DecisionOutcome(outcome)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}
