// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/config"
	"github.com/aristath/shopkeeper/internal/events"
	"github.com/aristath/shopkeeper/internal/scheduler"
)

// Wire initializes all dependencies and returns a fully configured container.
// The scheduler is registered but not started.
// Order of operations:
// 1. Initialize database
// 2. Initialize repositories
// 3. Create event bus and scheduler
// 4. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize database
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize repositories
	InitializeRepositories(container, log)

	// Step 3: Event bus and scheduler
	container.EventBus = events.NewBus(log)
	container.Scheduler = scheduler.New(log,
		scheduler.WithLocation(cfg.Location),
		scheduler.WithBus(container.EventBus),
		scheduler.WithHistorySize(cfg.Jobs.HistorySize),
		scheduler.WithStopTimeout(cfg.Jobs.ShutdownTimeout),
	)

	// Step 4: Register jobs
	if err := RegisterJobs(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
