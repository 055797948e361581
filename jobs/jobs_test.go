package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/daya-auto/carsale/internal/jobs"
	"github.com/daya-auto/carsale/internal/media"
)

type fakeStore struct {
	deleted []string
	fail    map[string]bool
}

func (s *fakeStore) Upload(ctx context.Context, img media.Image) (string, error) {
	return "", errors.New("not supported")
}

func (s *fakeStore) Delete(ctx context.Context, url string) error {
	if s.fail[url] {
		return errors.New("host unavailable")
	}
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *fakeStore) Owns(url string) bool { return true }

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func cleanupTask(t *testing.T, urls ...string) *asynq.Task {
	t.Helper()
	task, err := NewMediaCleanupTask(urls)
	require.NoError(t, err)
	return task
}

func TestMediaCleanupDeletesEveryURL(t *testing.T) {
	store := &fakeStore{}
	job := NewMediaCleanupJob(store, nil, testMetrics())
	err := job.Handle(context.Background(), cleanupTask(t, "https://img/a.jpg", " ", "https://img/b.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg"}, store.deleted)
}

func TestMediaCleanupFailsForRetry(t *testing.T) {
	store := &fakeStore{fail: map[string]bool{"https://img/b.jpg": true}}
	job := NewMediaCleanupJob(store, nil, testMetrics())
	err := job.Handle(context.Background(), cleanupTask(t, "https://img/a.jpg", "https://img/b.jpg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 images failed")
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, []string{"https://img/a.jpg"}, store.deleted)
}

func TestMediaCleanupRejectsBadPayload(t *testing.T) {
	job := NewMediaCleanupJob(&fakeStore{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskMediaCleanup, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClientEnqueuesCleanupWithRetryLimit(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)

	require.NoError(t, client.EnqueueImageCleanup(context.Background(), nil))
	assert.Empty(t, enq.tasks)

	require.NoError(t, client.EnqueueImageCleanup(context.Background(), []string{"https://img/a.jpg"}))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskMediaCleanup, enq.tasks[0].Type())

	var payload MediaCleanupPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, []string{"https://img/a.jpg"}, payload.URLs)
}

func TestTaskByName(t *testing.T) {
	task, err := TaskByName(TaskAnalyticsWarmup)
	require.NoError(t, err)
	assert.Equal(t, TaskAnalyticsWarmup, task.Type())

	task, err = TaskByName(TaskIdempotencyCleanup)
	require.NoError(t, err)
	assert.Equal(t, TaskIdempotencyCleanup, task.Type())

	_, err = TaskByName(TaskMediaCleanup)
	assert.Error(t, err)
	_, err = TaskByName("reports:nightly")
	assert.Error(t, err)
}

type fakeWarmer struct {
	calls int
	err   error
}

func (f *fakeWarmer) Warm(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestAnalyticsWarmup(t *testing.T) {
	warmer := &fakeWarmer{}
	job := NewAnalyticsWarmupJob(warmer, nil, testMetrics())
	require.NoError(t, job.Handle(context.Background(), NewAnalyticsWarmupTask()))
	assert.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("redis down")
	assert.Error(t, job.Handle(context.Background(), NewAnalyticsWarmupTask()))

	var unset *AnalyticsWarmupJob
	assert.Error(t, unset.Handle(context.Background(), NewAnalyticsWarmupTask()))
}

type fakePurger struct {
	olderThan time.Duration
}

func (f *fakePurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 4, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &fakePurger{}
	job := NewIdempotencyCleanupJob(purger, nil, testMetrics())

	task, err := NewIdempotencyCleanupTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, IdempotencyRetention, purger.olderThan)

	data, _ := json.Marshal(IdempotencyCleanupPayload{OlderThanHours: 12})
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, data)))
	assert.Equal(t, 12*time.Hour, purger.olderThan)
}

func TestInlineCleaner(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, InlineCleaner{Store: store}.EnqueueImageCleanup(context.Background(), []string{"https://img/x.png"}))
	assert.Equal(t, []string{"https://img/x.png"}, store.deleted)
	assert.NoError(t, InlineCleaner{}.EnqueueImageCleanup(context.Background(), []string{"https://img/y.png"}))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, h *Handler) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	rec, body := serveHealth(t, NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["enabled"])

	rec, body = serveHealth(t, NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["pending"])
	assert.Equal(t, float64(1), body["retry"])

	rec, _ = serveHealth(t, NewHandler(stubInspector{err: errors.New("dial tcp")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueueAdmin(t *testing.T) {
	enq := &fakeEnqueuer{}
	admin := NewQueueAdminWith(NewClientWith(enq), stubInspector{info: &asynq.QueueInfo{Pending: 2, Archived: 4}})

	_, err := admin.Trigger(context.Background(), TaskAnalyticsWarmup)
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskAnalyticsWarmup, enq.tasks[0].Type())

	_, err = admin.Trigger(context.Background(), TaskMediaCleanup)
	assert.Error(t, err)

	stats, err := admin.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: QueueDefault, Pending: 2, Archived: 4}, stats)

	missing := NewQueueAdminWith(nil, stubInspector{err: asynq.ErrQueueNotFound})
	stats, err = missing.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: QueueDefault}, stats)
	_, err = missing.Trigger(context.Background(), TaskAnalyticsWarmup)
	assert.Error(t, err)
	assert.NoError(t, missing.Close())
}
