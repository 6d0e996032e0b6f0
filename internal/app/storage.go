package app

import (
	"fmt"

	"esign-sync/internal/common/logging"
	"esign-sync/internal/storage"
	// Adapters register themselves with the storage registry.
	_ "esign-sync/internal/storage/postgres"
	_ "esign-sync/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	if app.Config.IsPostgres() {
		app.Logger.Info("Database: PostgreSQL",
			logging.String("host", app.Config.PostgresHost),
			logging.String("port", app.Config.PostgresPort),
			logging.String("database", app.Config.PostgresDB),
		)
	} else {
		app.Logger.Info("Database: SQLite", logging.String("path", app.Config.DatabasePath))
	}

	store, err := storage.NewStorage(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Storage = store
	return nil
}
