package auth

import (
	"strings"
	"time"

	"github.com/daya-auto/carsale/internal/rbac"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	// Role is derived from the email on load and never persisted.
	Role      rbac.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name returns the display name, falling back to the email local part.
func (u User) Name() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	Email           string `validate:"required,email"`
	DisplayName     string `validate:"max=80"`
	Password        string `validate:"required,min=6"`
	ConfirmPassword string `validate:"required"`
}

// ProfileInput carries settings changes; empty fields are left untouched.
type ProfileInput struct {
	DisplayName string `validate:"omitempty,max=80"`
	Email       string `validate:"omitempty,email"`
}

// PasswordInput carries a password change request.
type PasswordInput struct {
	Current string `validate:"required"`
	New     string `validate:"required,min=6"`
	Confirm string `validate:"required"`
}
