package app

import (
	"fmt"
	"strconv"

	"record-gateway/internal/common/logging"
	"record-gateway/internal/storage"
	"record-gateway/internal/storage/postgres"
	"record-gateway/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	var storageConfig storage.StorageConfig

	switch app.Config.DatabaseType {
	case "postgres", "postgresql":
		port, _ := strconv.Atoi(app.Config.PostgresPort)
		app.Logger.Info("Database: PostgreSQL",
			logging.String("host", app.Config.PostgresHost),
			logging.Int("port", port),
			logging.String("database", app.Config.PostgresDB),
		)
		storageConfig = &postgres.Config{
			Host:     app.Config.PostgresHost,
			Port:     port,
			Database: app.Config.PostgresDB,
			Username: app.Config.PostgresUser,
			Password: app.Config.PostgresPassword,
			SSLMode:  app.Config.PostgresSSLMode,
		}

	case "sqlite":
		path := app.Config.DatabasePath
		if path == "" {
			path = sqlite.DefaultConfig().DatabasePath
		}
		app.Logger.Info("Database: SQLite", logging.String("path", path))
		storageConfig = &sqlite.Config{DatabasePath: path}

	default:
		return fmt.Errorf("unsupported database type: %s", app.Config.DatabaseType)
	}

	storageType := storageConfig.GetType()
	store, err := storage.Create(storageType, storageConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Storage = store
	return nil
}
