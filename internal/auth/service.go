package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	policy   rbac.AdminPolicy
	validate *validator.Validate
	cost     int
}

// NewService constructs a new Service.
func NewService(repo Repository, policy rbac.AdminPolicy) *Service {
	return &Service{repo: repo, policy: policy, validate: validator.New(), cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost, mostly for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return s.withRole(user), nil
}

// Register creates an active account from the sign-up form.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	verr := s.validateStruct(in)
	if in.Password != in.ConfirmPassword {
		verr.Add("ConfirmPassword", "Passwords do not match")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return s.create(ctx, in.Email, in.DisplayName, in.Password)
}

// CreateUser provisions an account without the confirmation step.
func (s *Service) CreateUser(ctx context.Context, email, displayName, password string) (*User, error) {
	return s.Register(ctx, RegisterInput{Email: email, DisplayName: displayName, Password: password, ConfirmPassword: password})
}

func (s *Service) create(ctx context.Context, email, displayName, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.Create(ctx, User{Email: email, DisplayName: displayName, PasswordHash: string(hash), IsActive: true})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return nil, shared.NewValidationError(map[string]string{"Email": "Email is already registered"})
		}
		return nil, err
	}
	return s.withRole(user), nil
}

// UpdateProfile writes the changed profile fields of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*User, error) {
	current, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := s.validateStruct(in).Err(); err != nil {
		return nil, err
	}

	name, email := current.DisplayName, current.Email
	if in.DisplayName != "" {
		name = in.DisplayName
	}
	if in.Email != "" {
		email = in.Email
	}
	if name == current.DisplayName && email == current.Email {
		return s.withRole(current), nil
	}
	if err := s.repo.UpdateProfile(ctx, userID, name, email); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return nil, shared.NewValidationError(map[string]string{"Email": "Email is already registered"})
		}
		return nil, err
	}
	current.DisplayName, current.Email = name, email
	return s.withRole(current), nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, in PasswordInput) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	verr := s.validateStruct(in)
	if in.New != in.Confirm {
		verr.Add("Confirm", "Passwords do not match")
	}
	if in.Current != "" && bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Current)) != nil {
		verr.Add("Current", "Current password is incorrect")
	}
	if err := verr.Err(); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.New), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash))
}

// PrincipalByID implements rbac.Directory.
func (s *Service) PrincipalByID(ctx context.Context, userID int64) (rbac.Principal, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, rbac.ErrNotFound
		}
		return rbac.Principal{}, err
	}
	if !user.IsActive {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return PrincipalFor(*s.withRole(user)), nil
}

// RoleFor exposes the admin policy decision for email.
func (s *Service) RoleFor(email string) rbac.Role {
	return s.policy.RoleFor(email)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PrincipalFor converts a loaded user into an RBAC principal.
func PrincipalFor(u User) rbac.Principal {
	return rbac.Principal{UserID: u.ID, Email: u.Email, DisplayName: u.Name(), Role: u.Role}
}

func (s *Service) withRole(u *User) *User {
	u.Role = s.policy.RoleFor(u.Email)
	return u
}

func (s *Service) validateStruct(v any) *shared.ValidationError {
	return shared.ValidateStruct(s.validate, v)
}

var _ rbac.Directory = (*Service)(nil)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
