package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/audit"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/view"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func (s *stubTimelineService) Actions(ctx context.Context) ([]string, error) {
	return []string{"vehicle.create", "vehicle.delete"}, nil
}

var (
	admin  = rbac.Principal{UserID: 1, Email: "dayaauto@gmail.com", Role: rbac.RoleAdmin}
	seller = rbac.Principal{UserID: 2, Email: "seller@example.com", Role: rbac.RoleUser}
)

func newRouter(t *testing.T, service *stubTimelineService, actor rbac.Principal) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	h := NewHandler(nil, service, templates, nil, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), actor)))
		})
	})
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestTimelineRequiresPermission(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, &stubTimelineService{}, seller).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTimelineRendersRows(t *testing.T) {
	rows := []audit.TimelineRow{{ID: 9, At: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC), Actor: "seller@example.com", Action: "vehicle.create", Entity: "vehicle", EntityID: "12"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20, HasNext: true, NextPage: 2}}}

	rec := httptest.NewRecorder()
	newRouter(t, service, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?from=2025-06-01&to=2025-06-15&entity=vehicle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "seller@example.com")
	assert.Contains(t, body, `href="/vehicles/12"`)
	assert.Contains(t, body, "page=2")
	assert.Equal(t, "2025-06-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "vehicle", service.lastFilters.Entity)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	service := &stubTimelineService{}
	rec := httptest.NewRecorder()
	newRouter(t, service, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-08", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "2025-06-15", service.lastFilters.To.Format("2006-01-02"))
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	for _, target := range []string{
		"/audit?from=2025-06-10&to=2025-06-01",
		"/audit?from=2025-01-01&to=2025-06-01",
		"/audit?to=yesterday",
		"/audit?page=0",
	} {
		rec := httptest.NewRecorder()
		newRouter(t, &stubTimelineService{}, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.TimelineRow{{ID: 1, Actor: "seller@example.com", Action: "vehicle.create", Entity: "vehicle", EntityID: "1"}}}
	rec := httptest.NewRecorder()
	newRouter(t, service, admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2025-06-01&to=2025-06-05", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "activity-2025-06-05.csv")
	assert.Contains(t, rec.Body.String(), "seller@example.com")
}
