package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/models"
)

// GetTokenRecord returns the user's stored record, or nil when absent.
func (s *Store) GetTokenRecord(ctx context.Context, userKey string) (*models.TokenRecord, error) {
	var (
		rec                    models.TokenRecord
		refresh, acct, restURL sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT user_key, access_token, refresh_token, expires_at_ms, account_id, rest_base
		FROM token_records WHERE user_key = ?`), userKey).
		Scan(&rec.UserKey, &rec.AccessToken, &refresh, &rec.ExpiresAtMs, &acct, &restURL)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("load token record", err)
	}
	rec.RefreshToken = refresh.String
	rec.AccountID = acct.String
	rec.RestBase = restURL.String
	return &rec, nil
}

// SaveTokenRecord upserts the record keyed by user.
func (s *Store) SaveTokenRecord(ctx context.Context, record *models.TokenRecord) error {
	if record == nil || record.UserKey == "" {
		return errors.ValidationError("token record requires a user key")
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO token_records (user_key, access_token, refresh_token,
		expires_at_ms, account_id, rest_base, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_key) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, expires_at_ms = excluded.expires_at_ms,
			account_id = excluded.account_id, rest_base = excluded.rest_base, updated_at = excluded.updated_at`),
		record.UserKey, record.AccessToken, nullable(record.RefreshToken), record.ExpiresAtMs,
		nullable(record.AccountID), nullable(record.RestBase), s.nowMs())
	return wrap("save token record", err)
}

func (s *Store) DeleteTokenRecord(ctx context.Context, userKey string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM token_records WHERE user_key = ?`), userKey)
	return wrap("delete token record", err)
}
