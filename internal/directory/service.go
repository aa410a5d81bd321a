package directory

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"expenseflow/internal/audit"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
)

// Store is the persistence surface the directory service needs.
type Store interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByRole(ctx context.Context, role id.Role) ([]*User, error)
}

// TokenIssuer mints access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (string, error)
}

// Auditor records directory changes.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

const accessTokenTTL = time.Hour

type Service struct {
	store   Store
	tokens  TokenIssuer
	auditor Auditor
}

func NewService(store Store, tokens TokenIssuer, auditor Auditor) *Service {
	return &Service{store: store, tokens: tokens, auditor: auditor}
}

// CreateUserParams carries the validated fields for a new directory entry.
type CreateUserParams struct {
	FullName   string
	Email      string
	Password   string
	Role       id.Role
	Department string
	ManagerID  *id.UserID
}

// CreateUser hashes the password and stores the user. The manager edge must
// point at an existing user: the resolver later follows it without checks.
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if params.FullName == "" || params.Email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "full_name and email are required")
	}
	if len(params.Password) < 8 {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if params.ManagerID != nil {
		if _, err := s.store.FindByID(ctx, *params.ManagerID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "manager does not exist")
			}
			return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to verify manager", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to hash password", err)
	}

	user := &User{
		ID:           id.NewUserID(),
		FullName:     params.FullName,
		Email:        params.Email,
		Role:         params.Role,
		Department:   params.Department,
		ManagerID:    params.ManagerID,
		CreatedAt:    time.Now(),
		PasswordHash: string(hash),
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to create user", err)
	}

	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Action: audit.ActionUserCreated,
			Actor:  user.ID.String(),
		})
	}
	return user, nil
}

// Authenticate checks credentials and mints an access token. Unknown email
// and wrong password return the same error so the endpoint does not leak
// which emails exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Role, accessTokenTTL)
	if err != nil {
		return "", nil, dErrors.Wrap(dErrors.CodeInternal, "failed to issue token", err)
	}
	return token, user, nil
}

func (s *Service) Get(ctx context.Context, userID id.UserID) (*User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "failed to load user", err)
	}
	return user, nil
}
