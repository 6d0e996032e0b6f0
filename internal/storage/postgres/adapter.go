package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/storage/sqlstore"
)

const uniqueViolation = "23505"

// Adapter is the server-database Storage implementation.
type Adapter struct {
	*sqlstore.Store
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, errors.ConnectionError("failed to open database", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
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

// Dialect is the PostgreSQL flavour of the ledger SQL.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

// LockHost takes a transaction-scoped advisory lock on the host key.
func (Dialect) LockHost(ctx context.Context, tx *sql.Tx, hostKey string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, hostKey)
	return err
}

func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

func (Dialect) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (Dialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS envelopes (
			id BIGSERIAL PRIMARY KEY,
			host_key TEXT NOT NULL,
			envelope_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'sent',
			active BOOLEAN NOT NULL DEFAULT FALSE,
			sender TEXT,
			request_json TEXT,
			response_json TEXT,
			signed_attached BOOLEAN NOT NULL DEFAULT FALSE,
			signed_attachments TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (host_key, envelope_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_envelopes_envelope_id ON envelopes(envelope_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_envelopes_one_active ON envelopes(host_key) WHERE active`,
		`CREATE TABLE IF NOT EXISTS envelope_documents (
			id BIGSERIAL PRIMARY KEY,
			envelope_pk BIGINT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			attachment_id TEXT,
			filename TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_envelope ON envelope_documents(envelope_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_signers (
			id BIGSERIAL PRIMARY KEY,
			envelope_pk BIGINT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			recipient_id TEXT NOT NULL,
			routing_order INTEGER NOT NULL,
			signer_type TEXT NOT NULL,
			identity_ref TEXT,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signers_envelope ON envelope_signers(envelope_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_tabs (
			id BIGSERIAL PRIMARY KEY,
			signer_pk BIGINT NOT NULL REFERENCES envelope_signers(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			tab_type TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			x_position INTEGER NOT NULL,
			y_position INTEGER NOT NULL,
			position_index INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tabs_signer ON envelope_tabs(signer_pk)`,
		`CREATE TABLE IF NOT EXISTS envelope_events (
			id BIGSERIAL PRIMARY KEY,
			envelope_pk BIGINT NOT NULL REFERENCES envelopes(id) ON DELETE CASCADE,
			event_type TEXT NOT NULL,
			status TEXT,
			actor TEXT,
			payload_hash TEXT,
			payload TEXT,
			occurred_at BIGINT NOT NULL,
			UNIQUE (envelope_pk, payload_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS token_records (
			user_key TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			expires_at_ms BIGINT NOT NULL,
			account_id TEXT,
			rest_base TEXT,
			updated_at BIGINT NOT NULL
		)`,
	}
}
