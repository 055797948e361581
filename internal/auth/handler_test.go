package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/daya-auto/carsale/internal/auth"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
	_ "github.com/daya-auto/carsale/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	users    map[int64]*auth.User
	nextID   int64
	sessions map[string]int64
}

func newStubRepo(users ...*auth.User) *stubRepo {
	repo := &stubRepo{users: map[int64]*auth.User{}, sessions: map[string]int64{}}
	for _, u := range users {
		repo.users[u.ID] = u
		if u.ID > repo.nextID {
			repo.nextID = u.ID
		}
	}
	return repo
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubRepo) Create(ctx context.Context, user auth.User) (*auth.User, error) {
	if _, err := s.FindByEmail(ctx, user.Email); err == nil {
		return nil, shared.ErrConflict
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = &user
	cp := user
	return &cp, nil
}

func (s *stubRepo) UpdateProfile(ctx context.Context, id int64, displayName, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for otherID, u := range s.users {
		if otherID != id && strings.EqualFold(u.Email, email) {
			return shared.ErrConflict
		}
	}
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.DisplayName, u.Email = displayName, email
	return nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newService(repo auth.Repository) *auth.Service {
	return auth.NewService(repo, rbac.NewAdminPolicy([]string{"dayaauto@gmail.com"})).WithHashCost(bcrypt.MinCost)
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	tokens := auth.NewTokenIssuer("jwtsecret", time.Hour)
	handler := auth.NewHandler(nil, newService(repo), tokens, templates, sessionManager, csrfManager)
	return handler, sessionManager
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginPage(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, newStubRepo())

	req, sess := withSession(t, sessionManager, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	res := httptest.NewRecorder()
	handler.ShowLoginForTest(res, req)
	require.NoError(t, sessionManager.Commit(req.Context(), res, req, sess))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newStubRepo(&auth.User{ID: 1, Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true})
	handler, sessionManager := newAuthHandler(t, repo)

	req, _ := withSession(t, sessionManager, postForm("/auth/login", url.Values{"email": {"user@test.local"}, "password": {"wrongpass"}}))
	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.Empty(t, repo.sessions)
}

func TestLoginRenewsSessionAndStoresUser(t *testing.T) {
	repo := newStubRepo(&auth.User{ID: 3, Email: "user@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: true})
	handler, sessionManager := newAuthHandler(t, repo)

	req, sess := withSession(t, sessionManager, postForm("/auth/login", url.Values{"email": {"USER@test.local"}, "password": {"correctpass"}}))
	before := sess.ID
	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard", res.Header().Get("Location"))
	assert.Equal(t, "3", sess.User())
	assert.NotEqual(t, before, sess.ID)
	assert.Equal(t, int64(3), repo.sessions[sess.ID])
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	repo := newStubRepo(&auth.User{ID: 4, Email: "gone@test.local", PasswordHash: hashed(t, "correctpass"), IsActive: false})
	handler, sessionManager := newAuthHandler(t, repo)

	req, sess := withSession(t, sessionManager, postForm("/auth/login", url.Values{"email": {"gone@test.local"}, "password": {"correctpass"}}))
	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, sess.User())
}

func TestRegisterValidatesAndSignsIn(t *testing.T) {
	repo := newStubRepo(&auth.User{ID: 1, Email: "taken@test.local", IsActive: true})
	handler, sessionManager := newAuthHandler(t, repo)

	req, _ := withSession(t, sessionManager, postForm("/auth/register", url.Values{
		"email": {"taken@test.local"}, "password": {"secret1"}, "confirm_password": {"secret2"},
	}))
	res := httptest.NewRecorder()
	handler.HandleRegisterForTest(res, req)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "Passwords do not match")

	req, sess := withSession(t, sessionManager, postForm("/auth/register", url.Values{
		"email": {"new@test.local"}, "display_name": {"Nimal"}, "password": {"secret1"}, "confirm_password": {"secret1"},
	}))
	res = httptest.NewRecorder()
	handler.HandleRegisterForTest(res, req)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "2", sess.User())
}

func TestIssueToken(t *testing.T) {
	repo := newStubRepo(&auth.User{ID: 9, Email: "dayaauto@gmail.com", PasswordHash: hashed(t, "adminpass"), IsActive: true})
	handler, _ := newAuthHandler(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"email":"dayaauto@gmail.com","password":"adminpass"}`))
	res := httptest.NewRecorder()
	handler.IssueTokenForTest(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "admin", body.Role)

	p, err := auth.NewTokenIssuer("jwtsecret", time.Hour).VerifyToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), p.UserID)
	assert.True(t, p.IsAdmin())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"email":"dayaauto@gmail.com","password":"nope"}`))
	res = httptest.NewRecorder()
	handler.IssueTokenForTest(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}
