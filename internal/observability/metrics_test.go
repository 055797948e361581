package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesRuntimeCollectors(t *testing.T) {
	body := scrape(t, NewMetrics())
	assert.Contains(t, body, "go_goroutines")
	assert.Contains(t, body, "carsale_http_requests_in_flight 0")
}

func TestMetricsRegistererAcceptsJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track(context.Background(), "analytics:warmup").End(nil)

	assert.Contains(t, scrape(t, metrics), `carsale_jobs_total{job="analytics:warmup",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/vehicles/{id}")

	req := httptest.NewRequest(http.MethodGet, "/vehicles/9", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `carsale_http_requests_total{code="418",route="/vehicles/{id}"} 1`)
	assert.Contains(t, body, `carsale_http_request_duration_seconds_bucket{route="/vehicles/{id}"`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, prometheus.DefaultRegisterer, metrics.Registerer())
}
