// Package directory is the org/identity provider: it owns users, their roles
// and the manager edge, and resolves rule approver references to concrete
// approver ids per claim.
package directory

import (
	"time"

	id "expenseflow/pkg/domain"
)

// User is one directory entry.
type User struct {
	ID         id.UserID  `json:"id"`
	FullName   string     `json:"full_name"`
	Email      string     `json:"email"`
	Role       id.Role    `json:"role"`
	Department string     `json:"department"`
	ManagerID  *id.UserID `json:"manager_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// PasswordHash is a bcrypt hash, never serialized.
	PasswordHash string `json:"-"`
}

// ApproverID is the ledger identity for this user.
func (u *User) ApproverID() id.ApproverID {
	return id.ApproverID(u.ID.String())
}
