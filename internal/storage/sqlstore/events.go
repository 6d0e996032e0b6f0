package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/models"
)

// errDuplicate aborts a status transaction whose payload hash is already
// recorded.
var errDuplicate = stderrors.New("duplicate notification")

// insertEvent appends one ledger row. It reports false when the dialect
// rejected the row as a duplicate payload hash.
func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, envPK int64, evt models.Event, now int64) (bool, error) {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO envelope_events (envelope_pk, event_type, status, actor,
		payload_hash, payload, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		envPK, evt.Type, nullable(evt.Status), nullable(evt.Actor), nullable(evt.PayloadHash), nullable(evt.Payload), now)
	if err != nil {
		if evt.PayloadHash != "" && s.dialect.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecordStatusUpdate applies a polled status and recipient list. It always
// appends an event.
func (s *Store) RecordStatusUpdate(ctx context.Context, update models.StatusUpdate) error {
	if update.EventType == "" {
		update.EventType = models.EventStatusRefresh
	}
	update.PayloadHash = ""
	_, err := s.applyStatus(ctx, update)
	return err
}

// RecordConnectWebhookIfNew applies a pushed notification at most once per
// (envelope, payload hash). It returns false, with nothing changed, when the
// hash was already recorded.
func (s *Store) RecordConnectWebhookIfNew(ctx context.Context, update models.StatusUpdate) (bool, error) {
	if update.EventType == "" {
		update.EventType = models.EventWebhookConnect
	}
	return s.applyStatus(ctx, update)
}

func (s *Store) applyStatus(ctx context.Context, update models.StatusUpdate) (bool, error) {
	hostKey := strings.TrimSpace(update.HostKey)
	envelopeID := strings.TrimSpace(update.EnvelopeID)
	if hostKey == "" || envelopeID == "" {
		return false, errors.ValidationError("host key and envelope id are required")
	}
	status := models.NormalizeStatus(update.Status)

	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.dialect.LockHost(ctx, tx, hostKey); err != nil {
			return err
		}
		now := s.nowMs()

		envPK, found, err := s.findEnvelopePK(ctx, tx, hostKey, envelopeID)
		if err != nil {
			return err
		}

		if found && update.PayloadHash != "" {
			var one int
			err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM envelope_events WHERE envelope_pk = ? AND payload_hash = ?`),
				envPK, update.PayloadHash).Scan(&one)
			if err == nil {
				return errDuplicate
			}
			if !stderrors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		if !found {
			// An unknown envelope becomes the host's active one.
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE envelopes SET active = ?, updated_at = ?
				WHERE host_key = ? AND active = ?`), false, now, hostKey, true); err != nil {
				return err
			}
			initial := status
			if initial == "" {
				initial = models.StatusSent
			}
			err := tx.QueryRowContext(ctx, s.q(`INSERT INTO envelopes (host_key, envelope_id, status, active,
				signed_attached, signed_attachments, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
				hostKey, envelopeID, initial, true, false, encodeList(nil), now, now).Scan(&envPK)
			if err != nil {
				return err
			}
			created = true
		}

		inserted, err := s.insertEvent(ctx, tx, envPK, models.Event{
			Type:        update.EventType,
			Status:      status,
			Actor:       update.Actor.Key,
			PayloadHash: update.PayloadHash,
			Payload:     update.Payload,
		}, now)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicate
		}

		if status != "" {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE envelopes SET status = ?, updated_at = ? WHERE id = ?`),
				status, now, envPK); err != nil {
				return err
			}
		}

		for _, rcpt := range update.Recipients {
			email := strings.TrimSpace(rcpt.Email)
			if email == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE envelope_signers SET status = ?, updated_at = ?
				WHERE envelope_pk = ? AND LOWER(email) = LOWER(?)`),
				models.NormalizeStatus(rcpt.Status), now, envPK, email); err != nil {
				return err
			}
		}
		return nil
	})

	if stderrors.Is(err, errDuplicate) {
		s.logger.Debug("Duplicate status payload ignored",
			logging.String("host_key", hostKey),
			logging.String("envelope_id", envelopeID),
		)
		return false, nil
	}
	if err != nil {
		return false, wrap("record status update", err)
	}

	if created {
		s.logger.Info("Created envelope from status update",
			logging.String("host_key", hostKey),
			logging.String("envelope_id", envelopeID),
			logging.String("event", update.EventType),
		)
	}
	return true, nil
}
