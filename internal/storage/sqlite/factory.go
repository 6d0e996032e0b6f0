package sqlite

import (
	"esign-sync/internal/common/errors"
	"esign-sync/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	switch cfg := config.(type) {
	case *Config:
		return NewAdapter(cfg)
	case storage.GenericConfig:
		sqliteConfig := DefaultConfig()
		if path := cfg.String("path"); path != "" {
			sqliteConfig.DatabasePath = path
		}
		return NewAdapter(sqliteConfig)
	default:
		return nil, errors.ConfigError("invalid config type for SQLite storage")
	}
}

func (f *Factory) GetType() string {
	return "sqlite"
}

// Adapter must satisfy the full ledger contract.
var _ storage.Storage = (*Adapter)(nil)

func init() {
	storage.Register("sqlite", &Factory{})
}
