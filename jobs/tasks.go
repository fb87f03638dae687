package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/internal/notify"
)

// Queues. Event fan-out must not wait behind nightly maintenance, so the two
// are served separately with events weighted higher.
const (
	QueueEvents      = notify.EventQueue
	QueueMaintenance = "wms_maintenance"
)

// QueueWeights is the asynq priority map served by the worker.
var QueueWeights = map[string]int{
	QueueEvents:      6,
	QueueMaintenance: 1,
}

// QueueFor returns the queue a task type is enqueued on.
func QueueFor(taskType string) string {
	if taskType == TaskWarehouseEvent {
		return QueueEvents
	}
	return QueueMaintenance
}

const (
	// TaskWarehouseEvent carries one warehouse event for fan-out.
	TaskWarehouseEvent = notify.TaskWarehouseEvent
	// TaskAnalyticsWarmup precomputes the default analytics dashboard.
	TaskAnalyticsWarmup = "warehouse:analytics_warmup"
	// TaskIdempotencyCleanup removes expired scan request keys.
	TaskIdempotencyCleanup = "warehouse:idempotency_cleanup"
)

// Cron specs for scheduled tasks, UTC.
const (
	CronAnalyticsWarmup    = "15 1 * * *"
	CronIdempotencyCleanup = "30 2 * * *"
)

// DefaultKeyRetention is how long idempotency keys are kept.
const DefaultKeyRetention = 72 * time.Hour

// IdempotencyCleanupPayload configures one cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewAnalyticsWarmupTask constructs the warmup task.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAnalyticsWarmup, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// DefaultCron returns the scheduled tasks run by the worker.
func DefaultCron() ([]CronRegistration, error) {
	cleanup, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: CronAnalyticsWarmup, Task: NewAnalyticsWarmupTask(), Options: []asynq.Option{asynq.Queue(QueueMaintenance), asynq.MaxRetry(1)}},
		{Spec: CronIdempotencyCleanup, Task: cleanup, Options: []asynq.Option{asynq.Queue(QueueMaintenance)}},
	}, nil
}
