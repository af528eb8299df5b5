package models

import (
	"strings"
	"time"

	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
)

// Role is the coarse access level carried on the access token.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole accepts the two known roles case-insensitively. Empty input
// defaults to CUSTOMER.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(RoleCustomer):
		return RoleCustomer, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "role must be CUSTOMER or ADMIN")
	}
}

// User is an account in the user directory.
type User struct {
	ID           id.UserID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser builds a user. Customers start active; admins start inactive until
// an existing admin activates them. Email is stored lowercased so lookups are
// case-insensitive.
func NewUser(userID id.UserID, name, email string, role Role, passwordHash string, now time.Time) *User {
	return &User{
		ID:           userID,
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		Role:         role,
		Active:       role == RoleCustomer,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
