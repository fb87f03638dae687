package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueFor(task.Type())}, nil
}

type stubInspector struct {
	infos   map[string]*asynq.QueueInfo
	entries []*asynq.SchedulerEntry
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, errors.New("NOT_FOUND: queue " + queue)
	}
	return info, nil
}

func (s stubInspector) SchedulerEntries() ([]*asynq.SchedulerEntry, error) {
	return s.entries, nil
}

func TestTriggerCleanupWithRetention(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := c.Run(context.Background(), []string{"trigger", jobs.TaskIdempotencyCleanup, "12"}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "enqueued "+jobs.TaskIdempotencyCleanup)
	require.Contains(t, stdout.String(), "queue="+jobs.QueueMaintenance)

	require.Len(t, enq.tasks, 1)
	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, 12, payload.RetentionHours)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	_, err := c.Trigger(context.Background(), "mail:send")
	require.Error(t, err)

	_, err = c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup, "-1")
	require.Error(t, err)
}

func TestRunStatsCoversBothQueues(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueEvents:      {Queue: jobs.QueueEvents, Pending: 3, Latency: 1500 * time.Millisecond},
		jobs.QueueMaintenance: {Queue: jobs.QueueMaintenance, Retry: 1},
	}}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Equal(t, 0, c.Run(context.Background(), []string{"stats"}, stdout, stderr), stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "queue="+jobs.QueueEvents)
	require.Contains(t, lines[0], "pending=3")
	require.Contains(t, lines[0], "latency=1.5s")
	require.Contains(t, lines[1], "retry=1")
}

func TestRunStatsFailsWhenQueueMissing(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueEvents: {Queue: jobs.QueueEvents},
	}}}
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.Run(context.Background(), []string{"stats"}, new(bytes.Buffer), stderr))
	require.Contains(t, stderr.String(), jobs.QueueMaintenance)
}

func TestRunScheduledListsCronSoonestFirst(t *testing.T) {
	now := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	c := &JobsCLI{inspector: stubInspector{entries: []*asynq.SchedulerEntry{
		{Spec: jobs.CronIdempotencyCleanup, Task: asynq.NewTask(jobs.TaskIdempotencyCleanup, nil), Next: now.Add(150 * time.Minute)},
		{Spec: jobs.CronAnalyticsWarmup, Task: jobs.NewAnalyticsWarmupTask(), Next: now.Add(75 * time.Minute)},
	}}}
	stdout := new(bytes.Buffer)
	require.Equal(t, 0, c.Run(context.Background(), []string{"scheduled"}, stdout, new(bytes.Buffer)))

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, jobs.TaskAnalyticsWarmup+` "15 1 * * *" next=2026-05-04T01:15:00Z`, lines[0])
	require.True(t, strings.HasPrefix(lines[1], jobs.TaskIdempotencyCleanup))
}

func TestRunUsage(t *testing.T) {
	c := &JobsCLI{}
	stderr := new(bytes.Buffer)
	require.Equal(t, 2, c.Run(context.Background(), nil, new(bytes.Buffer), stderr))
	require.Equal(t, 1, c.Run(context.Background(), []string{"stats"}, new(bytes.Buffer), stderr))
}
