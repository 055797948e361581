package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
	"github.com/daya-auto/carsale/internal/media"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MediaCleanupJob deletes images from the media host after their vehicle,
// article or review dropped them.
type MediaCleanupJob struct {
	Store   media.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMediaCleanupJob wires the cleanup handler.
func NewMediaCleanupJob(store media.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *MediaCleanupJob {
	return &MediaCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle deletes every URL in the payload. Any failure fails the run so
// asynq redelivers it; deleting an already removed image is a no-op on
// every store.
func (j *MediaCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("media cleanup: handler not configured")
	}
	var payload MediaCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("media cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	metrics := j.metrics()
	tracker := metrics.Track(ctx, TaskMediaCleanup)
	logger := j.logger().With(slog.Int("images", len(payload.URLs)))

	deleted, failed := 0, 0
	var firstErr error
	for _, u := range payload.URLs {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if err := j.Store.Delete(ctx, u); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("delete image", slog.String("url", u), slog.Any("error", err))
			continue
		}
		deleted++
	}
	metrics.AddImages("deleted", deleted)
	metrics.AddImages("failed", failed)

	if firstErr != nil {
		return tracker.End(fmt.Errorf("media cleanup: %d of %d images failed: %w", failed, deleted+failed, firstErr))
	}
	logger.Info("media cleanup complete", slog.Int("deleted", deleted))
	return tracker.End(nil)
}

func (j *MediaCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *MediaCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// InlineCleaner deletes images synchronously. It stands in for the queue
// when no Redis is configured.
type InlineCleaner struct {
	Store  media.Store
	Logger *slog.Logger
}

// EnqueueImageCleanup deletes urls immediately.
func (c InlineCleaner) EnqueueImageCleanup(ctx context.Context, urls []string) error {
	if c.Store == nil || len(urls) == 0 {
		return nil
	}
	return media.DeleteAll(ctx, c.Store, urls)
}
