package sqlite

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"esign-sync/internal/common/errors"
)

// BusyTimeoutMs is how long a writer waits on a locked database.
const BusyTimeoutMs = 5000

type Config struct {
	DatabasePath string
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.ConfigError("database path is required")
	}
	if c.DatabasePath == ":memory:" {
		return nil
	}

	dir := filepath.Dir(c.DatabasePath)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return errors.ConfigError("database directory does not exist: " + dir)
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns the DSN. Transactions take the write lock up
// front so concurrent writers queue on the busy timeout.
func (c *Config) GetConnectionString() string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(BusyTimeoutMs))
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + c.DatabasePath + "?" + params.Encode()
}

func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "./esign_sync.db",
	}
}
