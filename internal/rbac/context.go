package rbac

import (
	"context"

	"github.com/daya-auto/carsale/internal/view"
)

type principalContextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or the zero
// value for anonymous requests.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}

// CurrentUser projects the request principal for templates.
func CurrentUser(ctx context.Context) *view.CurrentUser {
	p := PrincipalFromContext(ctx)
	if !p.Authenticated() {
		return nil
	}
	return &view.CurrentUser{
		ID:          p.UserID,
		Email:       p.Email,
		DisplayName: p.Name(),
		IsAdmin:     p.IsAdmin(),
	}
}
