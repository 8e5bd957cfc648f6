package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/shopkeeper/internal/config"
	"github.com/aristath/shopkeeper/internal/database"
)

// InitializeDatabases opens shop.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	shopDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "shop",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize shop database: %w", err)
	}

	if err := shopDB.Migrate(); err != nil {
		shopDB.Close()
		return nil, fmt.Errorf("failed to apply shop schema: %w", err)
	}
	container.ShopDB = shopDB

	log.Info().Str("path", shopDB.Path()).Msg("Shop database initialized")
	return container, nil
}
