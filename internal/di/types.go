/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency of the reconciler. It is
 * created by Wire() and handed to the server and to main for shutdown.
 */
package di

import (
	"github.com/aristath/shopkeeper/internal/database"
	"github.com/aristath/shopkeeper/internal/events"
	"github.com/aristath/shopkeeper/internal/modules/chat"
	"github.com/aristath/shopkeeper/internal/modules/orders"
	"github.com/aristath/shopkeeper/internal/modules/stats"
	"github.com/aristath/shopkeeper/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Database: a single shop.db (orders, chat, staff, product stats)
 * - Repositories: data access and reconcile.Store implementations
 * - Scheduler: cron triggers for every reconciliation job
 * - EventBus: in-process fan-out of finished job runs
 */
type Container struct {
	// Database
	ShopDB *database.DB

	// Repositories
	OrderRepo   *orders.Repository
	SessionRepo *chat.SessionRepository
	MessageRepo *chat.MessageRepository
	StaffRepo   *chat.StaffRepository
	StatsRepo   *stats.Repository

	// Background
	EventBus  *events.Bus
	Scheduler *scheduler.Scheduler
}

// Close releases the database
func (c *Container) Close() error {
	if c == nil || c.ShopDB == nil {
		return nil
	}
	return c.ShopDB.Close()
}
