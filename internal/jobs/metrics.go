package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run statuses recorded on carsale_jobs_total.
const (
	StatusSuccess = "success"
	StatusRetry   = "retry"
	StatusFailure = "failure"
)

// Metrics holds the collectors shared by the background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	images      *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer, or once on the
// default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Run times a single execution of a job.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
	final   bool
}

// Track starts timing job. When ctx comes from the asynq worker the run knows
// whether a failure will be retried.
func (m *Metrics) Track(ctx context.Context, job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now(), final: lastAttempt(ctx)}
}

// End records the outcome and returns err unchanged. Failures that asynq will
// retry count as "retry"; only the last attempt counts as a failure.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil || r.job == "" {
		return err
	}
	status := StatusSuccess
	switch {
	case err == nil:
		r.metrics.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	case r.final || errors.Is(err, asynq.SkipRetry):
		status = StatusFailure
		r.metrics.failures.WithLabelValues(r.job).Inc()
	default:
		status = StatusRetry
	}
	r.metrics.runs.WithLabelValues(r.job, status).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	return err
}

// AddImages counts hosted images processed by the cleanup job. outcome is
// "deleted" or "failed".
func (m *Metrics) AddImages(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.images.WithLabelValues(outcome).Add(float64(count))
}

func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	max, ok := asynq.GetMaxRetry(ctx)
	return !ok || retried >= max
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carsale_jobs_total",
			Help: "Job executions by job type and status (success, retry, failure).",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carsale_jobs_failures_total",
			Help: "Job executions that failed on their last attempt.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carsale_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carsale_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job type.",
		}, []string{"job"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carsale_media_cleanup_images_total",
			Help: "Hosted images processed by the cleanup job, by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.images)
	return m
}
