package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/shopkeeper/internal/reconcile"
)

// MaintenanceJobName is the name of the nightly database maintenance job
const MaintenanceJobName = "database_maintenance"

// walWarnFrames is the WAL size above which a checkpoint is logged as lagging
const walWarnFrames = 1000

const (
	diskCriticalBytes = 500 << 20
	diskLowBytes      = 5 << 30
)

// MaintainedDB is the part of database.DB the maintenance job uses
type MaintainedDB interface {
	Name() string
	HealthCheck(ctx context.Context) error
	Checkpoint(ctx context.Context) (walFrames, checkpointed int, err error)
}

// DatabaseMaintenanceJob verifies integrity of the shop database and
// checkpoints its WAL
type DatabaseMaintenanceJob struct {
	db       MaintainedDB
	dataDir  string
	diskFree func(ctx context.Context, path string) (uint64, error)
	log      zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new DatabaseMaintenanceJob.
// When dataDir is non-empty the job also checks free space on its filesystem.
func NewDatabaseMaintenanceJob(db MaintainedDB, dataDir string, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		db:       db,
		dataDir:  dataDir,
		diskFree: freeBytes,
		log:      log.With().Str("job", MaintenanceJobName).Logger(),
	}
}

func freeBytes(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return MaintenanceJobName
}

// Run executes the maintenance job
func (j *DatabaseMaintenanceJob) Run(ctx context.Context) (*reconcile.JobRun, error) {
	run := &reconcile.JobRun{
		ID:        uuid.NewString(),
		Job:       MaintenanceJobName,
		StartedAt: time.Now(),
	}
	defer func() { run.FinishedAt = time.Now() }()

	// Corruption cannot be repaired automatically; fail loudly
	if err := j.db.HealthCheck(ctx); err != nil {
		run.Err = fmt.Errorf("database %s is corrupted: %w", j.db.Name(), err)
		return run, run.Err
	}
	run.Scanned = 1

	if err := j.checkDiskSpace(ctx); err != nil {
		run.Err = err
		return run, run.Err
	}

	frames, checkpointed, err := j.db.Checkpoint(ctx)
	if err != nil {
		j.log.Warn().Err(err).Str("database", j.db.Name()).Msg("Failed to checkpoint WAL")
		run.Errors = append(run.Errors, reconcile.EntityError{
			EntityID: j.db.Name(),
			Stage:    reconcile.StageApply,
			Err:      err,
		})
		return run, nil
	}

	if frames > walWarnFrames && checkpointed < frames {
		j.log.Warn().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint is lagging")
	} else {
		j.log.Debug().
			Str("database", j.db.Name()).
			Int("wal_frames", frames).
			Msg("WAL checkpoint status OK")
	}
	run.Updated = 1

	j.log.Info().Str("database", j.db.Name()).Msg("Database maintenance completed")
	return run, nil
}

// checkDiskSpace fails when the data directory is nearly full; the
// reconcilers cannot write transitions without room for the WAL
func (j *DatabaseMaintenanceJob) checkDiskSpace(ctx context.Context) error {
	if j.dataDir == "" {
		return nil
	}

	free, err := j.diskFree(ctx, j.dataDir)
	if err != nil {
		// Not every platform reports usage; treat it as unknown
		j.log.Warn().Err(err).Str("path", j.dataDir).Msg("Failed to read disk usage")
		return nil
	}

	availableGB := float64(free) / 1e9
	switch {
	case free < diskCriticalBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case free < diskLowBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")
	}
	return nil
}
