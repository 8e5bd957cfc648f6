package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/modules/chat"
	"github.com/aristath/shopkeeper/internal/modules/orders"
	"github.com/aristath/shopkeeper/internal/modules/stats"
)

// InitializeRepositories creates every repository on the shop database
func InitializeRepositories(container *Container, log zerolog.Logger) {
	conn := container.ShopDB.Conn()

	container.OrderRepo = orders.NewRepository(conn, log)
	container.SessionRepo = chat.NewSessionRepository(conn, log)
	container.MessageRepo = chat.NewMessageRepository(conn, log)
	container.StaffRepo = chat.NewStaffRepository(conn, log)
	container.StatsRepo = stats.NewRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
}
