package scheduler

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/shopkeeper/internal/events"
	"github.com/aristath/shopkeeper/internal/reconcile"
)

// EntityFailure is the serializable form of a reconcile.EntityError
type EntityFailure struct {
	EntityID string `json:"entity_id"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// RunSummary is what the admin API and the event stream see of a JobRun
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Job         string          `json:"job"`
	Trigger     string          `json:"trigger"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	DurationMs  int64           `json:"duration_ms"`
	Scanned     int             `json:"scanned"`
	Updated     int             `json:"updated"`
	Skipped     int             `json:"skipped"`
	SideEffects int             `json:"side_effects"`
	Failures    []EntityFailure `json:"failures,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Summarize converts a run into its summary
func Summarize(run *reconcile.JobRun, trigger string) RunSummary {
	s := RunSummary{
		RunID:       run.ID,
		Job:         run.Job,
		Trigger:     trigger,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		DurationMs:  run.Duration().Milliseconds(),
		Scanned:     run.Scanned,
		Updated:     run.Updated,
		Skipped:     run.Skipped,
		SideEffects: run.SideEffects,
	}
	for _, e := range run.Errors {
		s.Failures = append(s.Failures, EntityFailure{
			EntityID: e.EntityID,
			Stage:    string(e.Stage),
			Error:    e.Err.Error(),
		})
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	return s
}

// Failed reports whether the run failed as a whole or for any entity
func (s RunSummary) Failed() bool {
	return s.Error != "" || len(s.Failures) > 0
}

// Event converts the summary into a bus event payload
func (s RunSummary) Event() *events.JobRunFinishedData {
	return &events.JobRunFinishedData{
		RunID:       s.RunID,
		Job:         s.Job,
		Trigger:     s.Trigger,
		StartedAt:   s.StartedAt,
		DurationMs:  s.DurationMs,
		Scanned:     s.Scanned,
		Updated:     s.Updated,
		Skipped:     s.Skipped,
		SideEffects: s.SideEffects,
		Failed:      len(s.Failures),
		Error:       s.Error,
	}
}

// Stats aggregates a job's run history.
// Runs and Failures count every run since start; the duration figures cover
// the retained window only.
type Stats struct {
	Runs          int        `json:"runs"`
	Failures      int        `json:"failures"`
	MeanMs        float64    `json:"mean_ms"`
	P95Ms         float64    `json:"p95_ms"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSucceeded bool       `json:"last_succeeded"`
}

// History is a fixed-size ring of run summaries
type History struct {
	mu       sync.Mutex
	size     int
	runs     []RunSummary // oldest first
	total    int
	failures int
}

// NewHistory creates a ring keeping the last size runs
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{size: size, runs: make([]RunSummary, 0, size)}
}

// Add records a run and returns its summary
func (h *History) Add(run *reconcile.JobRun, trigger string) RunSummary {
	s := Summarize(run, trigger)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.runs) == h.size {
		copy(h.runs, h.runs[1:])
		h.runs = h.runs[:len(h.runs)-1]
	}
	h.runs = append(h.runs, s)
	h.total++
	if s.Failed() {
		h.failures++
	}
	return s
}

// Recent returns up to limit summaries, newest first. limit <= 0 means all.
func (h *History) Recent(limit int) []RunSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunSummary, 0, n)
	for i := len(h.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.runs[i])
	}
	return out
}

// Stats aggregates the history
func (h *History) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Stats{Runs: h.total, Failures: h.failures}
	if len(h.runs) == 0 {
		return st
	}

	durations := make([]float64, len(h.runs))
	for i, r := range h.runs {
		durations[i] = float64(r.DurationMs)
	}
	sort.Float64s(durations)
	st.MeanMs = stat.Mean(durations, nil)
	st.P95Ms = stat.Quantile(0.95, stat.Empirical, durations, nil)

	last := h.runs[len(h.runs)-1]
	lastAt := last.StartedAt
	st.LastRunAt = &lastAt
	st.LastSucceeded = !last.Failed()
	return st
}
