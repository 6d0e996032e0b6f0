// Package sqlstore implements the envelope ledger and token records over
// database/sql. The sqlite and postgres adapters supply a Dialect and embed
// Store.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
)

// Limits applied to read paths.
const (
	DefaultHistoryLimit = 15
	MaxHistoryLimit     = 50
	MaxPollable         = 50
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  logging.Logger
	now     func() time.Time
}

func New(db *sql.DB, dialect Dialect, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.WithFields(logging.String("component", "store"), logging.String("dialect", dialect.Name())),
		now:     time.Now,
	}
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.PersistenceError("migrate schema", err)
		}
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.ConnectionError("database ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for adapters and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// inTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.PersistenceError("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.PersistenceError("commit transaction", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func decodeList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.PersistenceError(op, err)
}
