package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

type memoryRepo struct {
	users []User
}

func (m *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	return append([]User(nil), m.users...), nil
}

func (m *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].IsActive = active
			return nil
		}
	}
	return shared.ErrNotFound
}

type recordingAuditor struct {
	actions []string
}

func (r *recordingAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

func newTestService() (*Service, *memoryRepo, *recordingAuditor) {
	repo := &memoryRepo{users: []User{
		{ID: 1, Email: "dayaauto@gmail.com", Name: "Daya", IsActive: true},
		{ID: 2, Email: "sales@example.com", IsActive: true},
	}}
	audit := &recordingAuditor{}
	return NewService(repo, rbac.NewAdminPolicy([]string{"dayaauto@gmail.com"}), audit), repo, audit
}

func TestListUsersDerivesRole(t *testing.T) {
	svc, _, _ := newTestService()
	list, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rbac.RoleAdmin, list[0].Role)
	assert.Equal(t, rbac.RoleUser, list[1].Role)
	assert.Equal(t, "sales@example.com", list[1].Name)
}

func TestSetActiveGuards(t *testing.T) {
	svc, repo, audit := newTestService()
	admin := rbac.Principal{UserID: 1, Role: rbac.RoleAdmin}
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetActive(ctx, rbac.Principal{UserID: 2, Role: rbac.RoleUser}, 1, false), shared.ErrForbidden)

	_, isValidation := shared.AsValidation(svc.SetActive(ctx, admin, 1, false))
	assert.True(t, isValidation)

	require.NoError(t, svc.SetActive(ctx, admin, 2, false))
	assert.False(t, repo.users[1].IsActive)
	assert.Equal(t, []string{"user.deactivate"}, audit.actions)

	assert.ErrorIs(t, svc.SetActive(ctx, admin, 42, true), shared.ErrNotFound)
}
