package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-wms/jobs"
)

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueInspector reads queue and scheduler state; satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	SchedulerEntries() ([]*asynq.SchedulerEntry, error)
}

// JobsCLI wraps manual management helpers for warehouse jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{inspector, client}}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name with default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args ...string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskAnalyticsWarmup:
		task = jobs.NewAnalyticsWarmupTask()
	case jobs.TaskIdempotencyCleanup:
		payload := jobs.IdempotencyCleanupPayload{}
		if len(args) > 0 {
			hours, convErr := strconv.Atoi(args[0])
			if convErr != nil || hours <= 0 {
				return nil, fmt.Errorf("jobs cli: invalid retention hours %q", args[0])
			}
			payload.RetentionHours = hours
		}
		task, err = jobs.NewIdempotencyCleanupTask(payload)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueFor(name)), asynq.MaxRetry(3))
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string
	Paused    bool
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Latency   time.Duration
}

// InspectQueues reports the events queue followed by the maintenance queue.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	queues := []string{jobs.QueueEvents, jobs.QueueMaintenance}
	out := make([]QueueStats, 0, len(queues))
	for _, queue := range queues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			return nil, fmt.Errorf("jobs cli: queue %s: %w", queue, err)
		}
		stats := QueueStats{Queue: queue}
		if info != nil {
			stats.Paused = info.Paused
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Latency = info.Latency
		}
		out = append(out, stats)
	}
	return out, nil
}

// CronEntries lists the registered cron entries, soonest first.
func (c *JobsCLI) CronEntries(ctx context.Context) ([]*asynq.SchedulerEntry, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	entries, err := c.inspector.SchedulerEntries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Next.Before(entries[j].Next) })
	return entries, nil
}

// Run executes "trigger <task> [args]", "stats" or "scheduled" and returns
// the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: jobs trigger <task> [args] | stats | scheduled")
		return 2
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "usage: jobs trigger <task> [args]")
			return 2
		}
		info, err := c.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		all, err := c.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, stats := range all {
			fmt.Fprintf(stdout, "queue=%s paused=%t pending=%d active=%d scheduled=%d retry=%d latency=%s\n",
				stats.Queue, stats.Paused, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Latency.Round(time.Millisecond))
		}
	case "scheduled":
		entries, err := c.CronEntries(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "%s %q next=%s\n", e.Task.Type(), e.Spec, e.Next.UTC().Format(time.RFC3339))
		}
	default:
		fmt.Fprintf(stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
	return 0
}
