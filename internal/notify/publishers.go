package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel real-time listeners subscribe to.
const Channel = "warehouse.events"

// TaskWarehouseEvent is the asynq task type carrying a warehouse event.
const TaskWarehouseEvent = "warehouse:event"

// EventQueue is the queue event tasks go to unless told otherwise.
const EventQueue = "wms_events"

// RedisPublisher publishes events straight to Redis pub/sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a RedisPublisher on Channel.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: Channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return errors.New("notify: redis publisher not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher hands events to the worker through the job queue, so fan-out
// and cache invalidation happen off the request path.
type AsynqPublisher struct {
	client Enqueuer
	queue  string
}

// NewAsynqPublisher constructs an AsynqPublisher.
func NewAsynqPublisher(client Enqueuer, queue string) *AsynqPublisher {
	if queue == "" {
		queue = EventQueue
	}
	return &AsynqPublisher{client: client, queue: queue}
}

// NewEventTask wraps event into an asynq task.
func NewEventTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarehouseEvent, payload), nil
}

// DecodeEventTask extracts the event from a task payload.
func DecodeEventTask(t *asynq.Task) (Event, error) {
	var event Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Publish implements Publisher.
func (p *AsynqPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return errors.New("notify: asynq publisher not configured")
	}
	task, err := NewEventTask(event)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue), asynq.MaxRetry(2))
	return err
}
