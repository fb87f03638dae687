package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Worker runs the warehouse task handlers and, when configured, the cron
// scheduler that feeds the maintenance queue.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker validates the handler set and builds the server.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	mux := asynq.NewServeMux()
	seen := make(map[string]bool, len(cfg.Handlers))
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, errors.New("worker: handler needs a task type and a func")
		}
		if seen[h.Type] {
			return nil, errors.New("worker: duplicate handler for " + h.Type)
		}
		seen[h.Type] = true
		mux.HandleFunc(h.Type, h.Handler)
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:     concurrency,
		Queues:          QueueWeights,
		ShutdownTimeout: 20 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warn("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err))
		}),
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if !seen[entry.Task.Type()] {
				return nil, errors.New("worker: cron task without handler: " + entry.Task.Type())
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run serves tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}
	<-ctx.Done()
	w.logger.Info("worker draining")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueContext satisfies notify.Enqueuer. Tasks without an explicit queue
// option land on QueueFor(task.Type()).
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	opts = append([]asynq.Option{asynq.Queue(QueueFor(task.Type()))}, opts...)
	return c.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueAnalyticsWarmup schedules an immediate warmup, collapsing duplicates
// submitted within a minute.
func (c *Client) EnqueueAnalyticsWarmup(ctx context.Context) (*asynq.TaskInfo, error) {
	return c.EnqueueContext(ctx, NewAnalyticsWarmupTask(), asynq.Unique(time.Minute))
}

// EnqueueIdempotencyCleanup schedules a one-off cleanup run.
func (c *Client) EnqueueIdempotencyCleanup(ctx context.Context, payload IdempotencyCleanupPayload) (*asynq.TaskInfo, error) {
	task, err := NewIdempotencyCleanupTask(payload)
	if err != nil {
		return nil, err
	}
	return c.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reads queue state; satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler serves GET /jobs/health.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue          string  `json:"queue"`
	Paused         bool    `json:"paused"`
	Pending        int     `json:"pending"`
	Active         int     `json:"active"`
	Scheduled      int     `json:"scheduled"`
	Retry          int     `json:"retry"`
	Archived       int     `json:"archived"`
	LatencySeconds float64 `json:"latency_seconds"`
}

// queueOrder fixes the response order.
var queueOrder = []string{QueueEvents, QueueMaintenance}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := make([]queueHealth, 0, len(queueOrder))
	for _, queue := range queueOrder {
		entry := queueHealth{Queue: queue}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(queue)
			if err != nil {
				h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "queue "+queue+" unavailable")
				return
			}
			if info != nil {
				entry = queueHealth{
					Queue:          queue,
					Paused:         info.Paused,
					Pending:        info.Pending,
					Active:         info.Active,
					Scheduled:      info.Scheduled,
					Retry:          info.Retry,
					Archived:       info.Archived,
					LatencySeconds: info.Latency.Seconds(),
				}
			}
		}
		out = append(out, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}
