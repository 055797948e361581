package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/daya-auto/carsale/internal/shared"
)

// LoginPath is where anonymous browser requests are redirected.
const LoginPath = "/auth/login"

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Tokens  TokenVerifier
	Logger  *slog.Logger
}

// Authenticate resolves the principal from a bearer token or the session
// and stores it in the request context. Anonymous requests pass through.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			if m.Tokens == nil {
				writeUnauthorized(w)
				return
			}
			claimed, err := m.Tokens.VerifyToken(raw)
			if err != nil {
				m.logger().Debug("bearer token rejected", slog.Any("error", err))
				writeUnauthorized(w)
				return
			}
			// Claims only name the account; its state and role come from the directory.
			p, err := m.Service.Principal(r.Context(), claimed.UserID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					m.logger().Debug("bearer token for inactive account", slog.Int64("user_id", claimed.UserID))
					writeUnauthorized(w)
					return
				}
				m.logger().Error("rbac resolve token principal", slog.Any("error", err))
				writeProblem(w, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		sess := shared.SessionFromContext(r.Context())
		userID, ok := m.sessionUserID(sess)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.Service.Principal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Account removed or disabled since login.
				sess.SetUser("")
				next.ServeHTTP(w, r)
				return
			}
			m.logger().Error("rbac resolve principal", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAuth rejects anonymous requests.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Authenticated() {
			m.denyAnonymous(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, hasAllPermissions)
}

func (m Middleware) require(perms []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if !p.Authenticated() {
				m.denyAnonymous(w, r)
				return
			}
			if check(PermissionsFor(p.Role), normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.logger().Warn("rbac denied", slog.Int64("user_id", p.UserID), slog.String("path", r.URL.Path))
			if wantsJSON(r) {
				writeProblem(w, http.StatusForbidden)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) denyAnonymous(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeUnauthorized(w)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: "Please sign in to continue."})
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (m Middleware) sessionUserID(sess *shared.Session) (int64, bool) {
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger().Error("rbac parse user id", slog.String("value", raw))
		return 0, false
	}
	return id, true
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// HasBearerToken reports whether the request authenticates with a bearer token.
func HasBearerToken(r *http.Request) bool {
	_, ok := bearerToken(r)
	return ok
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="carsale"`)
	writeProblem(w, http.StatusUnauthorized)
}

func writeProblem(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"title":"` + http.StatusText(status) + `","status":` + strconv.Itoa(status) + `}`))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := permissionSet(granted)
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := permissionSet(granted)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

func permissionSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	return set
}
