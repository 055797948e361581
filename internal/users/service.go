package users

import (
	"context"
	"fmt"
	"strconv"

	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	policy  rbac.AdminPolicy
	auditor shared.Auditor
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, policy rbac.AdminPolicy, auditor shared.Auditor) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{repo: repo, policy: policy, auditor: auditor}
}

// ListUsers returns all users with their derived role.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	list, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Role = s.policy.RoleFor(list[i].Email)
		if list[i].Name == "" {
			list[i].Name = list[i].Email
		}
	}
	return list, nil
}

// SetActive enables or disables an account. Administrators cannot disable
// themselves or another administrator.
func (s *Service) SetActive(ctx context.Context, actor rbac.Principal, id int64, active bool) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	if !active {
		if id == actor.UserID {
			return shared.NewValidationError(map[string]string{"general": "You cannot deactivate your own account"})
		}
		list, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range list {
			if u.ID == id && u.Role == rbac.RoleAdmin {
				return shared.NewValidationError(map[string]string{"general": "Administrator accounts cannot be deactivated"})
			}
		}
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	if err := s.auditor.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
	}); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}
