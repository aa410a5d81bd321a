package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"expenseflow/internal/rules/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// Postgres persists approval rules in the approval_rules table. The tagged
// variant flattens into nullable columns on write and is reconstituted by
// kind on read, so the loose column shape never leaks past this package.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed rule store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const ruleColumns = `id, name, description, kind, threshold, approver_pool,
	required_approvers, combinator, min_amount_cents, categories, departments,
	active, version, created_at, updated_at`

// Create inserts a new rule.
func (s *Postgres) Create(ctx context.Context, rule *models.ApprovalRule) error {
	threshold, pool, approvers, combinator := flattenConfig(rule)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		rule.ID.String(), rule.Name, rule.Description, rule.Kind.String(),
		threshold, pool, approvers, combinator,
		rule.Scope.MinAmountCents, pq.Array(categoryStrings(rule.Scope.Categories)),
		pq.Array(rule.Scope.Departments),
		rule.Active, rule.Version, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Update replaces a rule if the caller saw the latest version.
func (s *Postgres) Update(ctx context.Context, rule *models.ApprovalRule, expectedVersion int64) error {
	threshold, pool, approvers, combinator := flattenConfig(rule)
	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_rules
		SET name = $2, description = $3, kind = $4, threshold = $5,
		    approver_pool = $6, required_approvers = $7, combinator = $8,
		    min_amount_cents = $9, categories = $10, departments = $11,
		    active = $12, version = $13, updated_at = $14
		WHERE id = $1 AND version = $15
	`,
		rule.ID.String(), rule.Name, rule.Description, rule.Kind.String(),
		threshold, pool, approvers, combinator,
		rule.Scope.MinAmountCents, pq.Array(categoryStrings(rule.Scope.Categories)),
		pq.Array(rule.Scope.Departments),
		rule.Active, rule.Version, rule.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rule rows affected: %w", err)
	}
	if affected == 0 {
		// Either the rule is gone or a concurrent edit won the version race.
		if _, findErr := s.FindByID(ctx, rule.ID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

// FindByID returns the rule with the given ID or ErrNotFound.
func (s *Postgres) FindByID(ctx context.Context, ruleID id.RuleID) (*models.ApprovalRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM approval_rules WHERE id = $1
	`, ruleID.String())
	rule, err := scanRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find rule: %w", err)
	}
	return rule, nil
}

// List returns all rules ordered by ID.
func (s *Postgres) List(ctx context.Context) ([]*models.ApprovalRule, error) {
	return s.listWhere(ctx, ``)
}

// ListActive returns the active rules ordered by ID.
func (s *Postgres) ListActive(ctx context.Context) ([]*models.ApprovalRule, error) {
	return s.listWhere(ctx, `WHERE active`)
}

func (s *Postgres) listWhere(ctx context.Context, where string) ([]*models.ApprovalRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM approval_rules `+where+` ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.ApprovalRule, error) {
	var (
		rule       models.ApprovalRule
		rawID      string
		kind       string
		threshold  sql.NullFloat64
		pool       []string
		approvers  []string
		combinator sql.NullString
		categories []string
	)
	err := row.Scan(
		&rawID, &rule.Name, &rule.Description, &kind,
		&threshold, pq.Array(&pool), pq.Array(&approvers), &combinator,
		&rule.Scope.MinAmountCents, pq.Array(&categories), pq.Array(&rule.Scope.Departments),
		&rule.Active, &rule.Version, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ruleID, err := id.ParseRuleID(rawID)
	if err != nil {
		return nil, err
	}
	rule.ID = ruleID
	rule.Kind = id.RuleKind(kind)
	for _, c := range categories {
		rule.Scope.Categories = append(rule.Scope.Categories, id.ExpenseCategory(c))
	}

	switch rule.Kind {
	case id.RuleKindPercentage:
		rule.Percentage = &models.PercentageConfig{
			Threshold: threshold.Float64,
			Pool:      toRefs(pool),
		}
	case id.RuleKindSpecific:
		rule.Specific = &models.SpecificConfig{
			Approvers: toRefs(approvers),
		}
	case id.RuleKindHybrid:
		rule.Hybrid = &models.HybridConfig{
			Threshold:  threshold.Float64,
			Pool:       toRefs(pool),
			Approvers:  toRefs(approvers),
			Combinator: id.Combinator(combinator.String),
		}
	}
	return &rule, nil
}

func flattenConfig(rule *models.ApprovalRule) (threshold sql.NullFloat64, pool, approvers any, combinator sql.NullString) {
	if t, ok := rule.Threshold(); ok {
		threshold = sql.NullFloat64{Float64: t, Valid: true}
	}
	pool = pq.Array(refStrings(rule.PoolRefs()))
	approvers = pq.Array(refStrings(rule.RequiredRefs()))
	if rule.Kind == id.RuleKindHybrid {
		combinator = sql.NullString{String: rule.Combinator().String(), Valid: true}
	}
	return threshold, pool, approvers, combinator
}

func refStrings(refs []models.ApproverRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

func toRefs(values []string) []models.ApproverRef {
	out := make([]models.ApproverRef, len(values))
	for i, v := range values {
		out[i] = models.ApproverRef(v)
	}
	return out
}

func categoryStrings(categories []id.ExpenseCategory) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = c.String()
	}
	return out
}
