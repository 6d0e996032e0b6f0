package storage

import (
	"esign-sync/internal/config"
)

// NewStorage opens the ledger backend selected by DATABASE_TYPE. The adapter
// packages register themselves on import.
func NewStorage(cfg *config.Config) (Storage, error) {
	name, ok := DefaultRegistry.Resolve(cfg.DatabaseType)
	if !ok {
		return Create(cfg.DatabaseType, GenericConfig{})
	}

	storageConfig := GenericConfig{"type": name}
	switch name {
	case "sqlite":
		storageConfig["path"] = cfg.DatabasePath
	case "postgres":
		if cfg.DatabaseURL != "" {
			storageConfig["connection_string"] = cfg.DatabaseURL
			break
		}
		storageConfig["host"] = cfg.PostgresHost
		storageConfig["port"] = cfg.PostgresPort
		storageConfig["database"] = cfg.PostgresDB
		storageConfig["username"] = cfg.PostgresUser
		storageConfig["password"] = cfg.PostgresPassword
		storageConfig["sslmode"] = cfg.PostgresSSLMode
	}

	return Create(name, storageConfig)
}
