package workflow

import (
	"context"
	"database/sql"

	txcontext "expenseflow/pkg/platform/tx"
)

// Transactor brackets the append-evaluate-transition critical section. The
// SQL implementation commits the ledger append, the claim transition, and the
// audit outbox rows in one transaction; the no-op implementation backs the
// in-memory stores, which rely on the per-claim lock alone.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs the function directly.
type NopTransactor struct{}

func (NopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SQLTransactor runs the function inside a database transaction carried
// through context, so every store picks the same transaction up.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Execute(ctx, t.db, fn)
}
