package postgres

import (
	"strconv"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(config storage.StorageConfig) (storage.Storage, error) {
	switch cfg := config.(type) {
	case *Config:
		return NewAdapter(cfg)
	case storage.GenericConfig:
		pgConfig, err := configFromGeneric(cfg)
		if err != nil {
			return nil, err
		}
		return NewAdapter(pgConfig)
	default:
		return nil, errors.ConfigError("invalid config type for PostgreSQL storage")
	}
}

func (f *Factory) GetType() string {
	return "postgres"
}

func configFromGeneric(gc storage.GenericConfig) (*Config, error) {
	if cs := gc.GetConnectionString(); cs != "" {
		return NewConfigFromURL(cs)
	}

	cfg := DefaultConfig()
	if v := gc.String("host"); v != "" {
		cfg.Host = v
	}
	if v := gc.String("port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.ConfigError("invalid PostgreSQL port: " + v)
		}
		cfg.Port = port
	}
	if v := gc.String("database"); v != "" {
		cfg.Database = v
	}
	if v := gc.String("username"); v != "" {
		cfg.Username = v
	}
	cfg.Password = gc.String("password")
	if v := gc.String("sslmode"); v != "" {
		cfg.SSLMode = v
	}
	return cfg, nil
}

// Adapter must satisfy the full ledger contract.
var _ storage.Storage = (*Adapter)(nil)

func init() {
	storage.Register("postgres", &Factory{}, "postgresql")
}
