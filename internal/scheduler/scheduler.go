// Package scheduler fires registered jobs on five-field cron schedules and
// supervises every run: panics are recovered, failures are logged and counted,
// and the trigger stays registered whatever the outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/events"
	"github.com/aristath/shopkeeper/internal/metrics"
	"github.com/aristath/shopkeeper/internal/reconcile"
)

var (
	// ErrUnknownJob is returned by RunNow for a name that was never registered
	ErrUnknownJob = errors.New("unknown job")
	// ErrDuplicateJob is returned when registering a name twice
	ErrDuplicateJob = errors.New("job already registered")
)

// Run triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Job is a unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context) (*reconcile.JobRun, error)
}

type registration struct {
	job      Job
	schedule string
	id       cron.EntryID
	history  *History
}

// Scheduler manages background jobs
type Scheduler struct {
	cron        *cron.Cron
	log         zerolog.Logger
	bus         *events.Bus
	location    *time.Location
	historySize int
	stopTimeout time.Duration

	mu   sync.RWMutex
	jobs map[string]*registration

	running sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLocation evaluates schedules in loc instead of time.Local
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithBus publishes a JobRunFinished event after every run
func WithBus(bus *events.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithHistorySize sets how many run summaries are kept per job
func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithStopTimeout bounds how long Stop waits for running jobs
func WithStopTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// New creates a new scheduler
func New(log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		log:         log.With().Str("component", "scheduler").Logger(),
		location:    time.Local,
		historySize: 50,
		stopTimeout: 30 * time.Second,
		jobs:        make(map[string]*registration),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(NewCronLogger(s.log)),
	)
	return s
}

// Register adds job under schedule. Schedules are standard five-field cron
// expressions or descriptors such as "@hourly" and "@every 30s".
func (s *Scheduler) Register(schedule string, job Job) error {
	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	reg := &registration{
		job:      job,
		schedule: schedule,
		history:  NewHistory(s.historySize),
	}
	id, err := s.cron.AddFunc(schedule, func() {
		s.execute(s.ctx, reg, TriggerSchedule)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
	}
	reg.id = id
	s.jobs[name] = reg

	s.log.Info().
		Str("schedule", schedule).
		Str("job", name).
		Msg("Job registered")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Entries())).Msg("Scheduler started")
}

// Stop stops firing new ticks and waits for running jobs up to the stop timeout.
// Jobs still running after that see their context cancelled.
func (s *Scheduler) Stop() error {
	cronDone := s.cron.Stop()

	allDone := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.running.Wait()
		close(allDone)
	}()

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()

	select {
	case <-allDone:
		s.cancel()
		s.log.Info().Msg("Scheduler stopped")
		return nil
	case <-timer.C:
		s.cancel()
		s.log.Warn().Dur("timeout", s.stopTimeout).Msg("Scheduler stopped with jobs still running")
		return fmt.Errorf("jobs still running after %s", s.stopTimeout)
	}
}

// RunNow executes a registered job immediately, outside its schedule.
// The run goes through the same supervision as a scheduled tick.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*reconcile.JobRun, error) {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	run := s.execute(ctx, reg, TriggerManual)
	return run, run.Err
}

// execute runs one job body under supervision. It never panics.
func (s *Scheduler) execute(ctx context.Context, reg *registration, trigger string) (run *reconcile.JobRun) {
	name := reg.job.Name()
	log := s.log.With().Str("job", name).Str("trigger", trigger).Logger()

	s.running.Add(1)
	defer s.running.Done()
	defer metrics.TrackRunning(name)()

	started := time.Now()
	log.Debug().Msg("Running job")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered panic in job")
			run = &reconcile.JobRun{
				Job:        name,
				StartedAt:  started,
				FinishedAt: time.Now(),
				Err:        fmt.Errorf("job %s panicked: %v", name, r),
			}
		}
		s.finish(log, reg, run, trigger)
	}()

	result, err := reg.job.Run(ctx)
	if result == nil {
		result = &reconcile.JobRun{Job: name, StartedAt: started, FinishedAt: time.Now()}
	}
	if result.Job == "" {
		result.Job = name
	}
	if err != nil && result.Err == nil {
		result.Err = err
	}
	return result
}

func (s *Scheduler) finish(log zerolog.Logger, reg *registration, run *reconcile.JobRun, trigger string) {
	summary := reg.history.Add(run, trigger)
	metrics.RecordJobRun(run, trigger)

	switch {
	case run.Err != nil:
		log.Error().
			Err(run.Err).
			Str("run_id", run.ID).
			Dur("duration", run.Duration()).
			Msg("Job failed")
	case run.Failed() > 0:
		log.Warn().
			Str("run_id", run.ID).
			Int("updated", run.Updated).
			Int("failed", run.Failed()).
			Msg("Job completed with entity failures")
	default:
		log.Debug().
			Str("run_id", run.ID).
			Int("updated", run.Updated).
			Dur("duration", run.Duration()).
			Msg("Job completed")
	}

	if s.bus != nil {
		s.bus.Publish("scheduler", summary.Event())
	}
}

// JobInfo describes a registered job
type JobInfo struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Next     *time.Time `json:"next,omitempty"`
	Prev     *time.Time `json:"prev,omitempty"`
	Stats    Stats      `json:"stats"`
}

// Entries returns every registered job sorted by name
func (s *Scheduler) Entries() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, reg := range s.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: reg.schedule,
			Stats:    reg.history.Stats(),
		}
		entry := s.cron.Entry(reg.id)
		if !entry.Next.IsZero() {
			next := entry.Next
			info.Next = &next
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			info.Prev = &prev
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Runs returns up to limit recent run summaries of a job, newest first
func (s *Scheduler) Runs(name string, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return reg.history.Recent(limit), nil
}
