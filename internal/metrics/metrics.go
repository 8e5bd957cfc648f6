// Package metrics exposes Prometheus instrumentation for job runs and the admin API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

var (
	// JobRunsTotal counts job runs by job, trigger and outcome
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopkeeper_job_runs_total",
			Help: "Total number of job runs",
		},
		[]string{"job", "trigger", "outcome"},
	)

	// JobRunDuration measures job run latency
	JobRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopkeeper_job_run_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"job"},
	)

	// EntitiesTotal counts entities by job and result
	EntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopkeeper_reconcile_entities_total",
			Help: "Entities handled by reconciliation passes",
		},
		[]string{"job", "result"}, // scanned, updated, skipped, failed
	)

	// SideEffectsTotal counts appended side effect records
	SideEffectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopkeeper_side_effects_total",
			Help: "Side effect records appended by reconciliation passes",
		},
		[]string{"job"},
	)

	// JobRunning is 1 while a job body executes
	JobRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopkeeper_job_running",
			Help: "Whether a job is currently running",
		},
		[]string{"job"},
	)

	// JobLastSuccess is the unix time of the last run without failures
	JobLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shopkeeper_job_last_success_timestamp_seconds",
			Help: "Unix time of the last fully successful run",
		},
		[]string{"job"},
	)

	// APIRequestsTotal counts admin API requests
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopkeeper_api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	// APIRequestDuration measures admin API latency
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopkeeper_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Outcome classifies a finished run
func Outcome(run *reconcile.JobRun) string {
	switch {
	case run.Err != nil:
		return OutcomeFailure
	case run.Failed() > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}

// RecordJobRun records a finished run
func RecordJobRun(run *reconcile.JobRun, trigger string) {
	outcome := Outcome(run)
	JobRunsTotal.WithLabelValues(run.Job, trigger, outcome).Inc()
	JobRunDuration.WithLabelValues(run.Job).Observe(run.Duration().Seconds())

	EntitiesTotal.WithLabelValues(run.Job, "scanned").Add(float64(run.Scanned))
	EntitiesTotal.WithLabelValues(run.Job, "updated").Add(float64(run.Updated))
	EntitiesTotal.WithLabelValues(run.Job, "skipped").Add(float64(run.Skipped))
	EntitiesTotal.WithLabelValues(run.Job, "failed").Add(float64(run.Failed()))
	SideEffectsTotal.WithLabelValues(run.Job).Add(float64(run.SideEffects))

	if outcome == OutcomeSuccess {
		JobLastSuccess.WithLabelValues(run.Job).Set(float64(run.FinishedAt.Unix()))
	}
}

// TrackRunning marks job as running and returns the function that clears it
func TrackRunning(job string) func() {
	JobRunning.WithLabelValues(job).Set(1)
	return func() {
		JobRunning.WithLabelValues(job).Set(0)
	}
}

// RecordAPIRequest records an admin API request
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
