package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/scheduler"
)

const defaultRunsLimit = 20

// JobHandlers exposes the scheduler over HTTP
type JobHandlers struct {
	log  zerolog.Logger
	jobs JobRunner
}

// NewJobHandlers creates job handlers
func NewJobHandlers(log zerolog.Logger, jobs JobRunner) *JobHandlers {
	return &JobHandlers{
		log:  log.With().Str("handler", "jobs").Logger(),
		jobs: jobs,
	}
}

// HandleList returns every registered job
// GET /api/jobs
func (h *JobHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"jobs": h.jobs.Entries(),
	})
}

// HandleRuns returns a job's recent run summaries, newest first
// GET /api/jobs/{name}/runs?limit=N
func (h *JobHandlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, h.log, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.jobs.Runs(name, limit)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"job":  name,
		"runs": runs,
	})
}

// HandleRun executes a job immediately and returns its run summary.
// A run that fails is still reported with 200; the summary carries the error.
// POST /api/jobs/{name}/run
func (h *JobHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// A client that hangs up must not abort a reconciliation halfway
	ctx := context.WithoutCancel(r.Context())

	run, err := h.jobs.RunNow(ctx, name)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	if run == nil {
		writeError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info().
		Str("job", name).
		Str("run_id", run.ID).
		Int("updated", run.Updated).
		Int("failed", run.Failed()).
		Msg("Manual job run finished")

	writeJSON(w, h.log, http.StatusOK, scheduler.Summarize(run, scheduler.TriggerManual))
}
