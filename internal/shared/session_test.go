package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "carsale_session", "secret", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie, fn func(*Session)) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	fn(sess)
	res := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), res, req, sess))
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestSessionPersistsUserAndFlash(t *testing.T) {
	sm, _ := newTestManager(t)

	cookie := roundTrip(t, sm, nil, func(s *Session) {
		s.SetUser("42")
		s.AddFlash(FlashMessage{Kind: "success", Message: "Vehicle added"})
	})

	var flash *FlashMessage
	cookie = roundTrip(t, sm, cookie, func(s *Session) {
		assert.Equal(t, "42", s.User())
		flash = s.PopFlash()
	})
	require.NotNil(t, flash)
	assert.Equal(t, "Vehicle added", flash.Message)

	roundTrip(t, sm, cookie, func(s *Session) {
		assert.Nil(t, s.PopFlash(), "flash must only be shown once")
	})
}

func TestSessionRenewDropsOldKey(t *testing.T) {
	sm, mr := newTestManager(t)

	first := roundTrip(t, sm, nil, func(s *Session) { s.Set("k", "v") })
	require.True(t, mr.Exists(sessionKeyPrefix+first.Value))

	second := roundTrip(t, sm, first, func(s *Session) {
		sm.Renew(s)
		s.SetUser("7")
	})
	assert.NotEqual(t, first.Value, second.Value)
	assert.False(t, mr.Exists(sessionKeyPrefix+first.Value))
	assert.True(t, mr.Exists(sessionKeyPrefix+second.Value))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	cookie := roundTrip(t, sm, nil, func(s *Session) { s.SetUser("1") })

	cleared := roundTrip(t, sm, cookie, func(s *Session) { sm.Destroy(s) })
	assert.Equal(t, -1, cleared.MaxAge)
	assert.False(t, mr.Exists(sessionKeyPrefix+cookie.Value))
}

func TestUnknownSessionIDIsNotReused(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newTestManager(t)
	csrf := NewCSRFManager("csrf-secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, "nope"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)
	_, err = csrf.EnsureToken(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSessionMissing)
}
