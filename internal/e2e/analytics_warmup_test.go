package e2e

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daya-auto/carsale/internal/analytics"
	"github.com/daya-auto/carsale/internal/inventory"
	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
	"github.com/daya-auto/carsale/jobs"
)

type countingSource struct {
	vehicles []inventory.Vehicle
	calls    atomic.Int32
	err      error
}

func (s *countingSource) Export(ctx context.Context, f inventory.Filters) ([]inventory.Vehicle, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.vehicles, nil
}

func newAnalytics(t *testing.T, source analytics.VehicleSource) (*analytics.Service, *analytics.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := analytics.NewCache(client, time.Hour)
	svc := analytics.NewService(source, cache, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC) })
	return svc, cache
}

func TestAnalyticsWarmupJobPrimesCache(t *testing.T) {
	sold := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	source := &countingSource{vehicles: []inventory.Vehicle{
		{Brand: "Toyota", Model: "Aqua", SellingPrice: decimal.NewFromInt(3_000_000), NetProfit: decimal.NewFromInt(500_000), Status: inventory.StatusSold, SoldAt: &sold},
		{Brand: "Honda", Model: "Fit", SellingPrice: decimal.NewFromInt(2_500_000), Status: inventory.StatusAvailable},
	}}
	svc, cache := newAnalytics(t, source)
	reg := prometheus.NewRegistry()
	job := jobs.NewAnalyticsWarmupJob(svc, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), jobs.NewAnalyticsWarmupTask()))
	assert.Equal(t, int32(1), source.calls.Load())

	// The first admin visit after warmup is served from the cache.
	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalVehicles)
	assert.Equal(t, 1, summary.Status.Sold)
	assert.Equal(t, int32(1), source.calls.Load())

	// A vehicle mutation bumps the version and forces a rebuild.
	require.NoError(t, cache.Bump(context.Background()))
	_, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, assertCounter(t, families, "carsale_jobs_total", map[string]string{"job": jobs.TaskAnalyticsWarmup, "status": "success"}, 1))
	assert.True(t, metricExists(families, "carsale_job_duration_seconds"))
}

func TestAnalyticsWarmupJobRecordsFailure(t *testing.T) {
	source := &countingSource{err: errors.New("database unavailable")}
	svc, _ := newAnalytics(t, source)
	reg := prometheus.NewRegistry()
	job := jobs.NewAnalyticsWarmupJob(svc, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), jobs.NewAnalyticsWarmupTask())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, assertCounter(t, families, "carsale_jobs_failures_total", map[string]string{"job": jobs.TaskAnalyticsWarmup}, 1))
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
