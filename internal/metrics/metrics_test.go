package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name     string
		run      *reconcile.JobRun
		expected string
	}{
		{"clean run", &reconcile.JobRun{Updated: 3}, OutcomeSuccess},
		{"entity failures", &reconcile.JobRun{Errors: []reconcile.EntityError{{EntityID: "e1"}}}, OutcomePartial},
		{"query failure", &reconcile.JobRun{Err: assert.AnError}, OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Outcome(tt.run))
		})
	}
}

func TestRecordJobRun(t *testing.T) {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	run := &reconcile.JobRun{
		Job:         "metrics_test_job",
		StartedAt:   started,
		FinishedAt:  started.Add(40 * time.Millisecond),
		Scanned:     5,
		Updated:     3,
		Skipped:     1,
		SideEffects: 3,
		Errors:      []reconcile.EntityError{{EntityID: "e5", Stage: reconcile.StageApply}},
	}

	RecordJobRun(run, "schedule")

	assert.Equal(t, 1.0, testutil.ToFloat64(JobRunsTotal.WithLabelValues("metrics_test_job", "schedule", OutcomePartial)))
	assert.Equal(t, 5.0, testutil.ToFloat64(EntitiesTotal.WithLabelValues("metrics_test_job", "scanned")))
	assert.Equal(t, 3.0, testutil.ToFloat64(EntitiesTotal.WithLabelValues("metrics_test_job", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(EntitiesTotal.WithLabelValues("metrics_test_job", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(SideEffectsTotal.WithLabelValues("metrics_test_job")))
	assert.Equal(t, 0.0, testutil.ToFloat64(JobLastSuccess.WithLabelValues("metrics_test_job")),
		"partial runs do not count as success")
}

func TestTrackRunning(t *testing.T) {
	done := TrackRunning("metrics_running_job")
	assert.Equal(t, 1.0, testutil.ToFloat64(JobRunning.WithLabelValues("metrics_running_job")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(JobRunning.WithLabelValues("metrics_running_job")))
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/api/jobs", "200", 3*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/jobs", "200")))
}
