package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// JobName returns the scheduler name of the reset job for p
func JobName(p Period) string {
	switch p {
	case Day:
		return "stats_reset_daily"
	case Week:
		return "stats_reset_weekly"
	case Month:
		return "stats_reset_monthly"
	}
	return "stats_reset_" + string(p)
}

// Resetter is the part of Repository the reset job needs
type Resetter interface {
	Reset(ctx context.Context, p Period, at time.Time) (int64, error)
}

// ResetJob zeroes one period's sales counters
type ResetJob struct {
	repo   Resetter
	period Period
	now    func() time.Time
	log    zerolog.Logger
}

// NewResetJob creates the reset job for period
func NewResetJob(repo Resetter, period Period, now func() time.Time, log zerolog.Logger) *ResetJob {
	if now == nil {
		now = time.Now
	}
	return &ResetJob{
		repo:   repo,
		period: period,
		now:    now,
		log:    log.With().Str("job", JobName(period)).Logger(),
	}
}

// Name returns the job name
func (j *ResetJob) Name() string {
	return JobName(j.period)
}

// Run resets the counters. The whole table is one unit: a failure fails the run.
func (j *ResetJob) Run(ctx context.Context) (*reconcile.JobRun, error) {
	run := &reconcile.JobRun{
		ID:        uuid.NewString(),
		Job:       j.Name(),
		StartedAt: j.now(),
	}

	n, err := j.repo.Reset(ctx, j.period, run.StartedAt)
	run.FinishedAt = j.now()
	if err != nil {
		run.Err = fmt.Errorf("%s reset failed: %w", j.period, err)
		return run, run.Err
	}

	run.Scanned = int(n)
	run.Updated = int(n)
	j.log.Info().
		Str("run_id", run.ID).
		Int64("products", n).
		Msg("Sales counters reset")
	return run, nil
}
