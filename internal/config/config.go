// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the database (always absolute)
	DatabasePath string
	LogLevel     string
	LogPretty    bool
	Port         int
	DevMode      bool
	Location     *time.Location // Time zone cron expressions are evaluated in

	Reconcile ReconcileConfig
	Jobs      JobsConfig
}

// ReconcileConfig holds the staleness thresholds of the reconciliation jobs
type ReconcileConfig struct {
	OrderAutoDeliveryHours int // Shipped orders older than this are marked delivered
	ChatInactiveHours      int // Idle chat sessions older than this are closed
	ChatAssignWaitMinutes  int // Unassigned chats waiting longer than this get a staff member
	Concurrency            int // Entities processed in parallel within one run
}

// JobsConfig holds scheduler bookkeeping settings
type JobsConfig struct {
	HistorySize     int           // Run summaries kept per job
	ShutdownTimeout time.Duration // Max wait for in-flight runs on shutdown
}

// OrderAutoDeliveryAge returns the order staleness threshold as a duration
func (c ReconcileConfig) OrderAutoDeliveryAge() time.Duration {
	return time.Duration(c.OrderAutoDeliveryHours) * time.Hour
}

// ChatInactiveAge returns the chat inactivity threshold as a duration
func (c ReconcileConfig) ChatInactiveAge() time.Duration {
	return time.Duration(c.ChatInactiveHours) * time.Hour
}

// ChatAssignWait returns how long a chat may wait unassigned
func (c ReconcileConfig) ChatAssignWait() time.Duration {
	return time.Duration(c.ChatAssignWaitMinutes) * time.Minute
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(absDataDir, "shop.db")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", true),
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		Location:     loc,
		Reconcile: ReconcileConfig{
			OrderAutoDeliveryHours: getEnvAsInt("ORDER_AUTO_DELIVERY_HOURS", 24),
			ChatInactiveHours:      getEnvAsInt("CHAT_INACTIVE_HOURS", 24),
			ChatAssignWaitMinutes:  getEnvAsInt("CHAT_ASSIGN_WAIT_MINUTES", 5),
			Concurrency:            getEnvAsInt("RECONCILE_CONCURRENCY", 1),
		},
		Jobs: JobsConfig{
			HistorySize:     getEnvAsInt("JOB_HISTORY_SIZE", 50),
			ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Reconcile.OrderAutoDeliveryHours <= 0 {
		return fmt.Errorf("ORDER_AUTO_DELIVERY_HOURS must be positive, got %d", c.Reconcile.OrderAutoDeliveryHours)
	}
	if c.Reconcile.ChatInactiveHours <= 0 {
		return fmt.Errorf("CHAT_INACTIVE_HOURS must be positive, got %d", c.Reconcile.ChatInactiveHours)
	}
	if c.Reconcile.ChatAssignWaitMinutes <= 0 {
		return fmt.Errorf("CHAT_ASSIGN_WAIT_MINUTES must be positive, got %d", c.Reconcile.ChatAssignWaitMinutes)
	}
	if c.Reconcile.Concurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1, got %d", c.Reconcile.Concurrency)
	}
	if c.Jobs.HistorySize < 1 {
		return fmt.Errorf("JOB_HISTORY_SIZE must be at least 1, got %d", c.Jobs.HistorySize)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
