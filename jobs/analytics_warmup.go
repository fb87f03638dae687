package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
)

// Warmer precomputes cached analytics.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// AnalyticsWarmupJob pre-populates the analytics cache for the default window.
type AnalyticsWarmupJob struct {
	Analytics Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewAnalyticsWarmupJob wires dependencies for the warmup handler.
func NewAnalyticsWarmupJob(analytics Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsWarmupJob {
	return &AnalyticsWarmupJob{Analytics: analytics, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes TaskAnalyticsWarmup tasks.
func (j *AnalyticsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskAnalyticsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()
	logger.Info("starting analytics warmup")

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	if err := j.Analytics.Warmup(ctx); err != nil {
		logger.Error("analytics warmup", slog.Any("error", err))
		return err
	}
	logger.Info("completed analytics warmup", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *AnalyticsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAnalyticsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAnalyticsWarmup))
}

func (j *AnalyticsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
