package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// Postgres persists users in the directory_users table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const userColumns = `id, full_name, email, password_hash, role, department, manager_id, created_at`

func (s *Postgres) Create(ctx context.Context, user *User) error {
	var managerID any
	if user.ManagerID != nil {
		managerID = uuid.UUID(*user.ManagerID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO directory_users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(user.ID), user.FullName, strings.ToLower(user.Email),
		user.PasswordHash, user.Role.String(), user.Department,
		managerID, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM directory_users WHERE id = $1`,
		uuid.UUID(userID),
	)
	return scanUser(row)
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM directory_users WHERE email = $1`,
		strings.ToLower(email),
	)
	return scanUser(row)
}

func (s *Postgres) ListByRole(ctx context.Context, role id.Role) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM directory_users WHERE role = $1 ORDER BY id`,
		role.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user      User
		userID    uuid.UUID
		role      string
		managerID uuid.NullUUID
	)
	err := row.Scan(&userID, &user.FullName, &user.Email, &user.PasswordHash,
		&role, &user.Department, &managerID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.ID = id.UserID(userID)
	user.Role = id.Role(role)
	if managerID.Valid {
		m := id.UserID(managerID.UUID)
		user.ManagerID = &m
	}
	return &user, nil
}
