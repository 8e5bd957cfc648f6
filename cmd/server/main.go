// Package main is the entry point of the shopkeeper back-office reconciler.
// It periodically confirms delivery of long-shipped orders, closes idle chat
// sessions, hands waiting chats to staff and resets rolling sales counters.
//
// The application follows the same layout as its packages:
// - Dependency injection via di.Wire
// - Repository pattern for data access
// - Cron-driven scheduler supervising every job run
// - Admin HTTP API for status, manual runs and metrics
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/shopkeeper/internal/config"
	"github.com/aristath/shopkeeper/internal/di"
	"github.com/aristath/shopkeeper/internal/server"
	"github.com/aristath/shopkeeper/pkg/logger"
)

// main orchestrates startup and shutdown:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires database, repositories, event bus and scheduler
// 4. Starts the admin HTTP server and the scheduler
// 5. Waits for a shutdown signal, then stops the scheduler (bounded wait
// for running jobs) and the server
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().
		Str("database", cfg.DatabasePath).
		Str("timezone", cfg.Location.String()).
		Int("order_auto_delivery_hours", cfg.Reconcile.OrderAutoDeliveryHours).
		Int("chat_inactive_hours", cfg.Reconcile.ChatInactiveHours).
		Int("chat_assign_wait_minutes", cfg.Reconcile.ChatAssignWaitMinutes).
		Msg("Starting shopkeeper")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing flushes the WAL
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		DB:        container.ShopDB,
		Jobs:      container.Scheduler,
		Bus:       container.EventBus,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		StartedAt: time.Now(),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Stop firing ticks first so no run starts against a closing server
	if err := container.Scheduler.Stop(); err != nil {
		log.Warn().Err(err).Msg("Scheduler did not stop cleanly")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
