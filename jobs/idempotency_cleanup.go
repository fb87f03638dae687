package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
)

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob expires scan request keys.
type IdempotencyCleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := DefaultKeyRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		j.logger().Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	j.metrics().AddItems(TaskIdempotencyCleanup, "keys", int(removed))
	j.logger().Info("removed expired idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
