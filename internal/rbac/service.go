package rbac

import (
	"context"
	"errors"
)

// ErrNotFound indicates that the principal does not exist or is disabled.
var ErrNotFound = errors.New("rbac: principal not found")

// Directory resolves user accounts into principals.
type Directory interface {
	PrincipalByID(ctx context.Context, userID int64) (Principal, error)
}

// TokenVerifier validates bearer tokens issued to API clients.
type TokenVerifier interface {
	VerifyToken(raw string) (Principal, error)
}

// Service orchestrates RBAC lookups.
type Service struct {
	directory Directory
}

// NewService constructs a Service backed by the provided directory.
func NewService(directory Directory) *Service {
	return &Service{directory: directory}
}

// Principal loads the principal for userID.
func (s *Service) Principal(ctx context.Context, userID int64) (Principal, error) {
	if s == nil || s.directory == nil {
		return Principal{}, errors.New("rbac: directory not configured")
	}
	if userID <= 0 {
		return Principal{}, ErrNotFound
	}
	return s.directory.PrincipalByID(ctx, userID)
}

// EffectivePermissions returns the permissions granted to userID.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	p, err := s.Principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	return PermissionsFor(p.Role), nil
}

// RolePermissions groups the permissions of a single role for display.
type RolePermissions struct {
	Role        Role
	Permissions []string
}

// ListPermissions returns the static role matrix.
func (s *Service) ListPermissions() []RolePermissions {
	return []RolePermissions{
		{Role: RoleAdmin, Permissions: PermissionsFor(RoleAdmin)},
		{Role: RoleUser, Permissions: PermissionsFor(RoleUser)},
	}
}
