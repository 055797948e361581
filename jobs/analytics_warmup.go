package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
)

// Warmer rebuilds a cached aggregate.
type Warmer interface {
	Warm(ctx context.Context) error
}

// AnalyticsWarmupJob pre-populates the analytics cache so the first admin
// visit of the day does not pay for the rebuild.
type AnalyticsWarmupJob struct {
	Analytics Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(analytics Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Analytics: analytics, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes analytics warmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(ctx, TaskAnalyticsWarmup)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	start := time.Now()
	if err := j.Analytics.Warm(ctx); err != nil {
		logger.Error("analytics warmup", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("analytics warmup complete", slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
