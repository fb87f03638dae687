package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
)

// Invalidator drops cached analytics.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// EventFanoutJob relays queued warehouse events to real-time listeners and
// invalidates analytics when stock or workflow state moved.
type EventFanoutJob struct {
	Publisher notify.Publisher
	Analytics Invalidator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewEventFanoutJob wires dependencies for the fan-out handler.
func NewEventFanoutJob(publisher notify.Publisher, analytics Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventFanoutJob {
	return &EventFanoutJob{Publisher: publisher, Analytics: analytics, Logger: logger, Metrics: metrics}
}

// Handle processes TaskWarehouseEvent tasks.
func (j *EventFanoutJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("event fanout: handler not configured")
	}
	event, err := notify.DecodeEventTask(t)
	if err != nil {
		j.logger().Warn("discard malformed event", slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskWarehouseEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if invalidates(event.Kind) && j.Analytics != nil {
		if err := j.Analytics.Invalidate(ctx); err != nil {
			j.logger().Error("invalidate analytics", slog.String("kind", string(event.Kind)), slog.Any("error", err))
			return err
		}
	}
	if j.Publisher != nil {
		if err := j.Publisher.Publish(ctx, event); err != nil {
			j.logger().Warn("publish event", slog.String("kind", string(event.Kind)), slog.Any("error", err))
			return err
		}
	}
	j.metrics().AddItems(TaskWarehouseEvent, string(event.Kind), 1)
	return nil
}

func invalidates(kind notify.Kind) bool {
	return kind == notify.KindInventoryChanged || kind == notify.KindWorkflowCompleted
}

func (j *EventFanoutJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskWarehouseEvent))
	}
	return slog.Default().With(slog.String("job", TaskWarehouseEvent))
}

func (j *EventFanoutJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
