package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/daya-auto/carsale/internal/analytics/http"
	"github.com/daya-auto/carsale/internal/articles"
	audithttp "github.com/daya-auto/carsale/internal/audit/http"
	"github.com/daya-auto/carsale/internal/auth"
	"github.com/daya-auto/carsale/internal/inventory"
	"github.com/daya-auto/carsale/internal/observability"
	"github.com/daya-auto/carsale/internal/platform/httpx"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/tariffs"
	"github.com/daya-auto/carsale/internal/users"
	"github.com/daya-auto/carsale/internal/view"
	"github.com/daya-auto/carsale/jobs"
	"github.com/daya-auto/carsale/report"
	"github.com/daya-auto/carsale/web"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	ArticlesHandler    *articles.Handler
	TariffsHandler     *tariffs.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AnalyticsHandler   *analytichttp.Handler
	AuditHandler       *audithttp.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	Database           Pinger
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.Authenticate)

	r.Get("/healthz", healthz(params.Database))
	r.Get("/", landing(params))

	r.Route("/auth", params.AuthHandler.MountRoutes)
	r.Route("/settings", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireAuth)
		params.AuthHandler.MountSettingsRoutes(r)
	})
	r.Route("/dashboard", params.InventoryHandler.MountDashboard)
	r.Route("/vehicles", params.InventoryHandler.MountRoutes)
	if params.ArticlesHandler != nil {
		r.Route("/articles", params.ArticlesHandler.MountRoutes)
		r.Route("/reviews", params.ArticlesHandler.MountReviewRoutes)
	}
	if params.TariffsHandler != nil {
		r.Route("/tariffs", params.TariffsHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.AnalyticsHandler != nil {
		r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAny(rbac.PermJobsView))
			params.JobHandler.MountRoutes(r)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountAPIRoutes)
		r.Route("/vehicles", params.InventoryHandler.MountAPIRoutes)
		if params.AnalyticsHandler != nil {
			r.Route("/analytics", params.AnalyticsHandler.MountAPIRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(rbac.PermJobsView))
				params.ReportHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// landing sends signed-in users to the dashboard and shows everyone else the
// public welcome page.
func landing(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rbac.PrincipalFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:       "Daya Auto",
			CSRFToken:   csrfToken,
			Flash:       flash,
			CurrentPath: r.URL.Path,
		}
		if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
		}
	}
}

func healthz(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
