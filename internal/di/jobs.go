// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/config"
	"github.com/aristath/shopkeeper/internal/modules/chat"
	"github.com/aristath/shopkeeper/internal/modules/orders"
	"github.com/aristath/shopkeeper/internal/modules/stats"
	"github.com/aristath/shopkeeper/internal/reconcile"
	"github.com/aristath/shopkeeper/internal/scheduler"
)

// Trigger schedules, fixed at registration time
const (
	ScheduleOrderDelivery  = "0 * * * *"
	ScheduleChatInactivity = "0 * * * *"
	ScheduleChatAssignment = "*/15 * * * *"
	ScheduleStatsDaily     = "0 0 * * *"
	ScheduleStatsWeekly    = "0 0 * * 1"
	ScheduleStatsMonthly   = "0 0 1 * *"
	ScheduleMaintenance    = "30 3 * * *"
)

// JobSpec pairs a job with its trigger
type JobSpec struct {
	Schedule string
	Job      scheduler.Job
}

// BuildJobs creates every scheduled job. Reconciliation rules are validated
// against their state machines first; an invalid rule fails startup.
func BuildJobs(container *Container, cfg *config.Config, log zerolog.Logger) ([]JobSpec, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	rc := cfg.Reconcile

	newPass := func(rule reconcile.Rule, allowed reconcile.TransitionSet, store reconcile.Store, records reconcile.RecordStore) (*reconcile.Pass, error) {
		if err := rule.Validate(allowed); err != nil {
			return nil, err
		}
		return reconcile.NewPass(reconcile.PassConfig{
			Rule:        rule,
			Store:       store,
			Records:     records,
			Now:         time.Now,
			Concurrency: rc.Concurrency,
			Log:         log,
		}), nil
	}

	delivery, err := newPass(orders.DeliveryRule(rc.OrderAutoDeliveryAge()), orders.Transitions, container.OrderRepo, nil)
	if err != nil {
		return nil, err
	}
	inactivity, err := newPass(chat.InactivityRule(rc.ChatInactiveAge()), chat.Transitions, container.SessionRepo, container.MessageRepo)
	if err != nil {
		return nil, err
	}
	assignment, err := newPass(chat.AssignmentRule(rc.ChatAssignWait(), container.StaffRepo), chat.Transitions, container.SessionRepo, container.MessageRepo)
	if err != nil {
		return nil, err
	}

	return []JobSpec{
		{ScheduleOrderDelivery, delivery},
		{ScheduleChatInactivity, inactivity},
		{ScheduleChatAssignment, assignment},
		{ScheduleStatsDaily, stats.NewResetJob(container.StatsRepo, stats.Day, time.Now, log)},
		{ScheduleStatsWeekly, stats.NewResetJob(container.StatsRepo, stats.Week, time.Now, log)},
		{ScheduleStatsMonthly, stats.NewResetJob(container.StatsRepo, stats.Month, time.Now, log)},
		{ScheduleMaintenance, scheduler.NewDatabaseMaintenanceJob(container.ShopDB, cfg.DataDir, log)},
	}, nil
}

// RegisterJobs builds every job and registers it with the container's scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	specs, err := BuildJobs(container, cfg, log)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := container.Scheduler.Register(spec.Schedule, spec.Job); err != nil {
			return fmt.Errorf("failed to register %s: %w", spec.Job.Name(), err)
		}
	}
	log.Info().Int("count", len(specs)).Msg("Jobs registered")
	return nil
}
