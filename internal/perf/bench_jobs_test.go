package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

type flakyPublisher struct {
	calls  int
	failAt map[int]bool
	delay  time.Duration
}

func (p *flakyPublisher) Publish(context.Context, notify.Event) error {
	p.calls++
	time.Sleep(p.delay)
	if p.failAt[p.calls] {
		return errors.New("redis timeout")
	}
	return nil
}

func TestEventFanoutThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	pub := &flakyPublisher{failAt: map[int]bool{17: true, 42: true}, delay: 2 * time.Millisecond}
	job := jobs.NewEventFanoutJob(pub, nil, nil, metrics)

	for i := 0; i < 60; i++ {
		task, err := notify.NewEventTask(notify.Event{Kind: notify.KindScanOccurred, SubjectType: "scan", SubjectID: int64(i)})
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		_ = job.Handle(context.Background(), task)
	}
	if err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskWarehouseEvent, []byte("?"))); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_wms_job_runs_total", map[string]string{"job": jobs.TaskWarehouseEvent, "status": "success"})
	failure := metricValue(t, families, "odyssey_wms_job_runs_total", map[string]string{"job": jobs.TaskWarehouseEvent, "status": "failure"})
	if success != 58 || failure != 2 {
		t.Fatalf("unexpected run counts: success=%v failure=%v", success, failure)
	}
	relayed := metricValue(t, families, "odyssey_wms_job_items_total", map[string]string{"job": jobs.TaskWarehouseEvent, "kind": string(notify.KindScanOccurred)})
	if relayed != 58 {
		t.Fatalf("relayed events = %v, want 58", relayed)
	}

	mean := histogramMean(t, families, "odyssey_wms_job_duration_seconds", map[string]string{"job": jobs.TaskWarehouseEvent})
	if mean > 0.5 {
		t.Fatalf("fanout duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
