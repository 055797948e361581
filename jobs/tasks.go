package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskMediaCleanup deletes hosted images that no record references.
	TaskMediaCleanup = "media:cleanup"
	// TaskAnalyticsWarmup rebuilds the cached analytics summary.
	TaskAnalyticsWarmup = "analytics:warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	// MediaCleanupMaxRetry bounds redelivery of a cleanup task.
	MediaCleanupMaxRetry = 5
	// AnalyticsWarmupCron runs the warmup nightly at 01:15 UTC.
	AnalyticsWarmupCron = "15 1 * * *"
	// IdempotencyCleanupCron runs the key purge nightly at 03:00 UTC.
	IdempotencyCleanupCron = "0 3 * * *"
	// IdempotencyRetention is how long completed keys are kept.
	IdempotencyRetention = 7 * 24 * time.Hour
)

// Names lists every task type the worker registers.
var Names = []string{TaskMediaCleanup, TaskAnalyticsWarmup, TaskIdempotencyCleanup}

// MediaCleanupPayload carries the URLs to delete.
type MediaCleanupPayload struct {
	URLs []string `json:"urls"`
}

// NewMediaCleanupTask builds a cleanup task for urls.
func NewMediaCleanupTask(urls []string) (*asynq.Task, error) {
	data, err := json.Marshal(MediaCleanupPayload{URLs: urls})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMediaCleanup, data, asynq.MaxRetry(MediaCleanupMaxRetry), asynq.Queue(QueueDefault)), nil
}

// NewAnalyticsWarmupTask builds the warmup task.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAnalyticsWarmup, nil, asynq.MaxRetry(3), asynq.Queue(QueueDefault))
}

// IdempotencyCleanupPayload optionally overrides the retention window.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours,omitempty"`
}

// NewIdempotencyCleanupTask builds the purge task with the default retention.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}
