package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/shared"
)

type stubDirectory struct {
	principals map[int64]Principal
	err        error
}

func (s stubDirectory) PrincipalByID(ctx context.Context, id int64) (Principal, error) {
	if s.err != nil {
		return Principal{}, s.err
	}
	p, ok := s.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

type stubTokens struct {
	principal Principal
}

func (s stubTokens) VerifyToken(raw string) (Principal, error) {
	if raw != "good" {
		return Principal{}, errors.New("bad token")
	}
	return s.principal, nil
}

func TestAdminPolicy(t *testing.T) {
	policy := NewAdminPolicy([]string{" DayaAuto@gmail.com ", ""})
	assert.Equal(t, RoleAdmin, policy.RoleFor("dayaauto@gmail.com"))
	assert.Equal(t, RoleAdmin, policy.RoleFor("DAYAAUTO@GMAIL.COM"))
	assert.Equal(t, RoleUser, policy.RoleFor("sales@example.com"))
	assert.Equal(t, RoleUser, policy.RoleFor(""))
}

func TestPrincipalPermissions(t *testing.T) {
	admin := Principal{UserID: 1, Role: RoleAdmin}
	user := Principal{UserID: 2, Role: RoleUser}

	assert.True(t, admin.Can(PermVehiclesDelete))
	assert.True(t, admin.Can(PermAnalyticsView))
	assert.False(t, user.Can(PermVehiclesDelete))
	assert.False(t, user.Can(PermAnalyticsView))
	assert.True(t, user.Can(PermVehiclesCreate))

	assert.True(t, admin.CanManageOwned(99))
	assert.True(t, user.CanManageOwned(2))
	assert.False(t, user.CanManageOwned(3))
	assert.False(t, Principal{}.CanManageOwned(0))
}

func TestPermissionsForIsSortedCopy(t *testing.T) {
	perms := PermissionsFor(RoleUser)
	require.NotEmpty(t, perms)
	perms[0] = "mutated"
	assert.NotEqual(t, "mutated", PermissionsFor(RoleUser)[0])
	assert.Nil(t, PermissionsFor(Role("ghost")))
}

func newMiddleware(dir stubDirectory) Middleware {
	return Middleware{Service: NewService(dir), Tokens: stubTokens{principal: Principal{UserID: 5, Role: RoleUser}}}
}

func withSessionUser(r *http.Request, id string) *http.Request {
	sess := &shared.Session{ID: "test"}
	sess.SetUser(id)
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func TestAuthenticateResolvesSessionPrincipal(t *testing.T) {
	mw := newMiddleware(stubDirectory{principals: map[int64]Principal{7: {UserID: 7, Email: "a@b.c", Role: RoleAdmin}}})
	var got Principal
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	req := withSessionUser(httptest.NewRequest(http.MethodGet, "/vehicles", nil), "7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(7), got.UserID)
	assert.True(t, got.IsAdmin())
}

func TestAuthenticateClearsStaleSessionUser(t *testing.T) {
	mw := newMiddleware(stubDirectory{principals: map[int64]Principal{}})
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, PrincipalFromContext(r.Context()).Authenticated())
	}))
	req := withSessionUser(httptest.NewRequest(http.MethodGet, "/", nil), "9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "", shared.SessionFromContext(req.Context()).User())
}

func TestAuthenticateBearerToken(t *testing.T) {
	mw := newMiddleware(stubDirectory{principals: map[int64]Principal{5: {UserID: 5, Email: "api@example.com", Role: RoleUser}}})
	var got Principal
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(5), got.UserID)

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
	bad.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateBearerUsesCurrentAccountState(t *testing.T) {
	// The token still claims admin for user 5.
	tokens := stubTokens{principal: Principal{UserID: 5, Email: "old-admin@example.com", Role: RoleAdmin}}
	var got Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
	})
	bearer := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
		req.Header.Set("Authorization", "Bearer good")
		return req
	}

	demoted := Middleware{
		Service: NewService(stubDirectory{principals: map[int64]Principal{5: {UserID: 5, Email: "old-admin@example.com", Role: RoleUser}}}),
		Tokens:  tokens,
	}
	rec := httptest.NewRecorder()
	demoted.Authenticate(next).ServeHTTP(rec, bearer())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RoleUser, got.Role)

	got = Principal{}
	disabled := Middleware{Service: NewService(stubDirectory{principals: map[int64]Principal{}}), Tokens: tokens}
	rec = httptest.NewRecorder()
	disabled.Authenticate(next).ServeHTTP(rec, bearer())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.False(t, got.Authenticated())

	broken := Middleware{Service: NewService(stubDirectory{err: errors.New("db down")}), Tokens: tokens}
	rec = httptest.NewRecorder()
	broken.Authenticate(next).ServeHTTP(rec, bearer())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAnyRedirectsAnonymousBrowser(t *testing.T) {
	mw := newMiddleware(stubDirectory{})
	h := mw.RequireAny(PermAnalyticsView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analytics", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnyForbidsNonAdmin(t *testing.T) {
	mw := newMiddleware(stubDirectory{})
	called := false
	h := mw.RequireAny(PermAnalyticsView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/analytics", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: 2, Role: RoleUser}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: 1, Role: RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.True(t, called)
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	mw := newMiddleware(stubDirectory{})
	h := mw.RequireAll(PermVehiclesView, PermVehiclesDelete)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/1", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: 2, Role: RoleUser}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
