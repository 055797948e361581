package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
)

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges stale API idempotency keys.
type IdempotencyCleanupJob struct {
	Keys    KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires the purge handler.
func NewIdempotencyCleanupJob(keys KeyPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle processes idempotency cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := IdempotencyRetention
	if payload.OlderThanHours > 0 {
		retention = time.Duration(payload.OlderThanHours) * time.Hour
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(ctx, TaskIdempotencyCleanup)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	removed, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("idempotency cleanup complete", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}
