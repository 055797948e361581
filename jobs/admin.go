package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// QueueAdmin wraps manual management helpers for operators.
type QueueAdmin struct {
	client    *Client
	inspector QueueInspector
	closers   []func() error
}

// NewQueueAdmin connects a client and inspector to the queue's Redis.
func NewQueueAdmin(redisOpts asynq.RedisClientOpt) *QueueAdmin {
	inspector := asynq.NewInspector(redisOpts)
	client := NewClient(redisOpts)
	return &QueueAdmin{client: client, inspector: inspector, closers: []func() error{inspector.Close, client.Close}}
}

// NewQueueAdminWith builds an admin from existing parts.
func NewQueueAdminWith(client *Client, inspector QueueInspector) *QueueAdmin {
	return &QueueAdmin{client: client, inspector: inspector}
}

// Trigger enqueues a job by name and returns the task ID.
func (a *QueueAdmin) Trigger(ctx context.Context, name string) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("jobs admin: client not configured")
	}
	info, err := a.client.Trigger(ctx, name)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.ID, nil
}

// Stats reports counts for the default queue.
func (a *QueueAdmin) Stats(ctx context.Context) (QueueStats, error) {
	if a == nil || a.inspector == nil {
		return QueueStats{}, errors.New("jobs admin: inspector not configured")
	}
	info, err := a.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return QueueStats{Queue: QueueDefault}, nil
		}
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// Close releases underlying connections.
func (a *QueueAdmin) Close() error {
	var err error
	for _, closeFn := range a.closers {
		if closeErr := closeFn(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}
