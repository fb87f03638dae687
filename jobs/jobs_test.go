package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type countingAnalytics struct {
	invalidated int
	warmed      int
	err         error
}

func (a *countingAnalytics) Invalidate(context.Context) error {
	a.invalidated++
	return a.err
}

func (a *countingAnalytics) Warmup(context.Context) error {
	a.warmed++
	return a.err
}

type fakeCleaner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (c *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return c.removed, c.err
}

func eventTask(t *testing.T, kind notify.Kind) *asynq.Task {
	t.Helper()
	task, err := notify.NewEventTask(notify.Event{Kind: kind, ActorID: 7, SubjectType: "product", SubjectID: 3, Quantity: 5})
	require.NoError(t, err)
	return task
}

func TestEventFanoutInvalidatesOnStockChange(t *testing.T) {
	pub := &recordingPublisher{}
	analytics := &countingAnalytics{}
	job := NewEventFanoutJob(pub, analytics, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), eventTask(t, notify.KindInventoryChanged)))
	require.NoError(t, job.Handle(context.Background(), eventTask(t, notify.KindWorkflowCompleted)))
	require.NoError(t, job.Handle(context.Background(), eventTask(t, notify.KindScanOccurred)))

	require.Equal(t, 2, analytics.invalidated)
	require.Len(t, pub.events, 3)
	require.Equal(t, notify.KindScanOccurred, pub.events[2].Kind)
}

func TestEventFanoutSkipsMalformedPayload(t *testing.T) {
	job := NewEventFanoutJob(&recordingPublisher{}, nil, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskWarehouseEvent, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEventFanoutPublishFailureRetries(t *testing.T) {
	boom := errors.New("redis down")
	job := NewEventFanoutJob(&recordingPublisher{err: boom}, nil, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), eventTask(t, notify.KindScanOccurred))
	require.ErrorIs(t, err, boom)
}

func TestEventFanoutPublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, notify.Channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	job := NewEventFanoutJob(notify.NewRedisPublisher(client), nil, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(ctx, eventTask(t, notify.KindInventoryChanged)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got notify.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, notify.KindInventoryChanged, got.Kind)
	require.Equal(t, 5, got.Quantity)
}

func TestAnalyticsWarmupJob(t *testing.T) {
	analytics := &countingAnalytics{}
	job := NewAnalyticsWarmupJob(analytics, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), NewAnalyticsWarmupTask()))
	require.Equal(t, 1, analytics.warmed)

	analytics.err = errors.New("db gone")
	require.Error(t, job.Handle(context.Background(), NewAnalyticsWarmupTask()))

	var unset *AnalyticsWarmupJob
	require.Error(t, unset.Handle(context.Background(), NewAnalyticsWarmupTask()))
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	job := NewIdempotencyCleanupJob(cleaner, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, DefaultKeyRetention, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{RetentionHours: 6})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 6*time.Hour, cleaner.olderThan)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDefaultCron(t *testing.T) {
	entries, err := DefaultCron()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, CronAnalyticsWarmup, entries[0].Spec)
	require.Equal(t, TaskAnalyticsWarmup, entries[0].Task.Type())
	require.Equal(t, TaskIdempotencyCleanup, entries[1].Task.Type())
}

type healthBody struct {
	Queues []queueHealth `json:"queues"`
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	require.Equal(t, QueueEvents, body.Queues[0].Queue)
	require.Equal(t, QueueMaintenance, body.Queues[1].Queue)
	require.Zero(t, body.Queues[0].Pending)
}

type stubQueueInspector map[string]*asynq.QueueInfo

func (s stubQueueInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, errors.New("queue not found")
	}
	return info, nil
}

func TestHealthReportsLatencyAndFailsOnMissingQueue(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubQueueInspector{
		QueueEvents:      {Queue: QueueEvents, Pending: 4, Latency: 2 * time.Second},
		QueueMaintenance: {Queue: QueueMaintenance, Paused: true},
	}, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body healthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 4, body.Queues[0].Pending)
	require.InDelta(t, 2.0, body.Queues[0].LatencySeconds, 1e-9)
	require.True(t, body.Queues[1].Paused)

	r = chi.NewRouter()
	NewHandler(stubQueueInspector{QueueEvents: {Queue: QueueEvents}}, quietLogger()).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueueFor(t *testing.T) {
	require.Equal(t, QueueEvents, QueueFor(TaskWarehouseEvent))
	require.Equal(t, QueueMaintenance, QueueFor(TaskAnalyticsWarmup))
	require.Equal(t, QueueMaintenance, QueueFor(TaskIdempotencyCleanup))
	require.Greater(t, QueueWeights[QueueEvents], QueueWeights[QueueMaintenance])
}

func TestNewWorkerRejectsBadWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	noop := func(context.Context, *asynq.Task) error { return nil }

	_, err := NewWorker(WorkerConfig{RedisOpts: opts, Logger: quietLogger(), Handlers: []TaskHandler{
		{Type: TaskAnalyticsWarmup, Handler: noop},
		{Type: TaskAnalyticsWarmup, Handler: noop},
	}})
	require.ErrorContains(t, err, "duplicate handler")

	cron, err := DefaultCron()
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Logger: quietLogger(), Cron: cron, Handlers: []TaskHandler{
		{Type: TaskAnalyticsWarmup, Handler: noop},
	}})
	require.ErrorContains(t, err, "cron task without handler: "+TaskIdempotencyCleanup)

	w, err := NewWorker(WorkerConfig{RedisOpts: opts, Logger: quietLogger(), Cron: cron, Handlers: []TaskHandler{
		{Type: TaskAnalyticsWarmup, Handler: noop},
		{Type: TaskIdempotencyCleanup, Handler: noop},
		{Type: TaskWarehouseEvent, Handler: noop},
	}})
	require.NoError(t, err)
	require.NotNil(t, w)
}
