package analytichttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/daya-auto/carsale/internal/rbac"
)

// MountRoutes registers the dashboard and exports under /analytics.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Use(h.rbac.RequireAny(rbac.PermAnalyticsView))
	r.Get("/", h.handleDashboard)
	r.Group(func(gr chi.Router) {
		gr.Use(exportLimiter())
		gr.Get("/export.csv", h.handleCSV)
		gr.Get("/report.pdf", h.handlePDF)
	})
}

// MountAPIRoutes registers the JSON summary under /api/v1/analytics.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Use(h.rbac.RequireAny(rbac.PermAnalyticsView))
	r.Get("/summary", h.handleSummaryJSON)
}

func exportLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := rbac.PrincipalFromContext(r.Context()); p.Authenticated() {
		return "user:" + strconv.FormatInt(p.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
