package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.IncSuccess("audit-retention")
	m.IncSuccess("audit-retention")
	m.IncFailure("catalog-retention")
	m.ObserveDuration("audit-retention", 40*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", "outcome", "success")
	if err != nil {
		t.Fatalf("fetch success: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	got, err = fetchCounterValue(mfs, "maintenance_job_runs_total", "outcome", "failure")
	if err != nil {
		t.Fatalf("fetch failure: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if sum, err := fetchHistogramSum(mfs, "maintenance_job_duration_seconds", "job", "audit-retention"); err != nil || sum <= 0 {
		t.Fatalf("expected positive duration sum, got %v (%v)", sum, err)
	}
}

func TestNilJobMetricsIsNoop(t *testing.T) {
	var m *JobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)
	NewJobMetrics(nil).IncSuccess("x")
}
