package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/mattn/go-sqlite3"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/storage/sqlstore"
)

// Adapter is the embedded-database Storage implementation.
type Adapter struct {
	*sqlstore.Store
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", config.GetConnectionString())
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("failed to ping database", err)
	}

	store := sqlstore.New(db, Dialect{}, logging.GetGlobalLogger())
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Adapter{Store: store, config: config}, nil
}

// Dialect is the sqlite flavour of the ledger SQL.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

// LockHost is a no-op: _txlock=immediate already serialises writers.
func (Dialect) LockHost(context.Context, *sql.Tx, string) error { return nil }

func (Dialect) Rebind(query string) string { return query }

func (Dialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS envelopes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_key TEXT NOT NULL,
			envelope_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'sent',
			active BOOLEAN NOT NULL DEFAULT 0,
			sender TEXT,
			request_json TEXT,
			response_json TEXT,
			signed_attached BOOLEAN NOT NULL DEFAULT 0,
			signed_attachments TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (host_key, envelope_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_envelope_id ON envelopes(envelope_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_envelopes_one_active ON envelopes(host_key) WHERE active = 1`,
		`CREATE TABLE IF NOT EXISTS envelope_documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			envelope_pk INTEGER NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			attachment_id TEXT,
			filename TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_envelope ON envelope_documents(envelope_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_signers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			envelope_pk INTEGER NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			recipient_id TEXT NOT NULL,
			routing_order INTEGER NOT NULL,
			signer_type TEXT NOT NULL,
			identity_ref TEXT,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signers_envelope ON envelope_signers(envelope_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_tabs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signer_pk INTEGER NOT NULL REFERENCES envelope_signers(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			tab_type TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			x_position INTEGER NOT NULL,
			y_position INTEGER NOT NULL,
			position_index INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tabs_signer ON envelope_tabs(signer_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			envelope_pk INTEGER NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			status TEXT,
			actor TEXT,
			payload_hash TEXT,
			payload TEXT,
			occurred_at INTEGER NOT NULL,
			UNIQUE (envelope_pk, payload_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS token_records (
			user_key TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			expires_at_ms INTEGER NOT NULL,
			account_id TEXT,
			rest_base TEXT,
			updated_at INTEGER NOT NULL
		)`,
	}
}
