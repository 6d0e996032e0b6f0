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

const envelopeColumns = `id, host_key, envelope_id, status, active, sender, request_json, response_json,
	signed_attached, signed_attachments, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEnvelope(row rowScanner) (*models.Envelope, error) {
	var (
		env                 models.Envelope
		sender, req, resp   sql.NullString
		attachments         sql.NullString
		createdAt, updateAt int64
	)
	err := row.Scan(&env.ID, &env.HostKey, &env.EnvelopeID, &env.Status, &env.Active, &sender, &req, &resp,
		&env.SignedAttached, &attachments, &createdAt, &updateAt)
	if err != nil {
		return nil, err
	}
	env.Sender = sender.String
	env.RequestJSON = req.String
	env.ResponseJSON = resp.String
	env.SignedAttachments = decodeList(attachments)
	env.CreatedAt = msToTime(createdAt)
	env.UpdatedAt = msToTime(updateAt)
	return &env, nil
}

// RecordSent stores a freshly sent envelope as the host's only active one,
// together with its documents, signers, tabs and an envelope.sent event.
// A row created earlier by a push notification for the same envelope is
// completed in place.
func (s *Store) RecordSent(ctx context.Context, sent models.SentEnvelope) error {
	if sent.HostKey == "" || sent.EnvelopeID == "" {
		return errors.ValidationError("host key and envelope id are required")
	}
	status := models.NormalizeStatus(sent.Status)
	if status == "" {
		status = models.StatusSent
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.dialect.LockHost(ctx, tx, sent.HostKey); err != nil {
			return err
		}
		now := s.nowMs()

		if _, err := tx.ExecContext(ctx, s.q(`UPDATE envelopes SET active = ?, updated_at = ?
			WHERE host_key = ? AND active = ? AND envelope_id <> ?`),
			false, now, sent.HostKey, true, sent.EnvelopeID); err != nil {
			return err
		}

		envPK, found, err := s.findEnvelopePK(ctx, tx, sent.HostKey, sent.EnvelopeID)
		if err != nil {
			return err
		}
		if found {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE envelopes SET status = ?, active = ?, sender = ?,
				request_json = ?, response_json = ?, updated_at = ? WHERE id = ?`),
				status, true, nullable(sent.Sender), nullable(sent.RequestJSON), nullable(sent.ResponseJSON), now, envPK); err != nil {
				return err
			}
			if err := s.deleteChildren(ctx, tx, envPK); err != nil {
				return err
			}
		} else {
			err := tx.QueryRowContext(ctx, s.q(`INSERT INTO envelopes (host_key, envelope_id, status, active, sender,
				request_json, response_json, signed_attached, signed_attachments, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
				sent.HostKey, sent.EnvelopeID, status, true, nullable(sent.Sender),
				nullable(sent.RequestJSON), nullable(sent.ResponseJSON), false, encodeList(nil), now, now).Scan(&envPK)
			if err != nil {
				return err
			}
		}

		for _, doc := range sent.Documents {
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO envelope_documents (envelope_pk, document_id, attachment_id, filename)
				VALUES (?, ?, ?, ?)`), envPK, doc.DocumentID, nullable(doc.AttachmentID), doc.Filename); err != nil {
				return err
			}
		}

		for _, signer := range sent.Signers {
			var signerPK int64
			err := tx.QueryRowContext(ctx, s.q(`INSERT INTO envelope_signers (envelope_pk, recipient_id, routing_order,
				signer_type, identity_ref, email, name, status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
				envPK, signer.RecipientID, signer.RoutingOrder, signer.Type, nullable(signer.IdentityRef),
				signer.Email, signer.Name, models.NormalizeStatus(signer.Status), now, now).Scan(&signerPK)
			if err != nil {
				return err
			}
			for _, tab := range signer.Tabs {
				if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO envelope_tabs (signer_pk, document_id, tab_type,
					page_number, x_position, y_position, position_index) VALUES (?, ?, ?, ?, ?, ?, ?)`),
					signerPK, tab.DocumentID, tab.TabType, tab.PageNumber, tab.XPosition, tab.YPosition, tab.PositionIndex); err != nil {
					return err
				}
			}
		}

		_, err = s.insertEvent(ctx, tx, envPK, models.Event{
			Type:   models.EventEnvelopeSent,
			Status: status,
			Actor:  sent.Sender,
		}, now)
		return err
	})
	if err != nil {
		return wrap("record sent envelope", err)
	}

	s.logger.Info("Recorded sent envelope",
		logging.String("host_key", sent.HostKey),
		logging.String("envelope_id", sent.EnvelopeID),
		logging.Int("signers", len(sent.Signers)),
		logging.Int("documents", len(sent.Documents)),
	)
	return nil
}

func (s *Store) deleteChildren(ctx context.Context, tx *sql.Tx, envPK int64) error {
	stmts := []string{
		`DELETE FROM envelope_tabs WHERE signer_pk IN (SELECT id FROM envelope_signers WHERE envelope_pk = ?)`,
		`DELETE FROM envelope_signers WHERE envelope_pk = ?`,
		`DELETE FROM envelope_documents WHERE envelope_pk = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.q(stmt), envPK); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) findEnvelopePK(ctx context.Context, tx *sql.Tx, hostKey, envelopeID string) (int64, bool, error) {
	var pk int64
	err := tx.QueryRowContext(ctx, s.q(`SELECT id FROM envelopes WHERE host_key = ? AND envelope_id = ?`),
		hostKey, envelopeID).Scan(&pk)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pk, true, nil
}

// GetEnvelope returns the envelope, or nil when it is not recorded.
func (s *Store) GetEnvelope(ctx context.Context, hostKey, envelopeID string) (*models.Envelope, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+envelopeColumns+` FROM envelopes
		WHERE host_key = ? AND envelope_id = ?`), hostKey, envelopeID)
	env, err := scanEnvelope(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return env, wrap("load envelope", err)
}

// ActiveEnvelope returns the host's active envelope, or nil.
func (s *Store) ActiveEnvelope(ctx context.Context, hostKey string) (*models.Envelope, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+envelopeColumns+` FROM envelopes
		WHERE host_key = ? AND active = ? ORDER BY id DESC LIMIT 1`), hostKey, true)
	env, err := scanEnvelope(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return env, wrap("load active envelope", err)
}

// LoadActiveIssueState returns the UI view of the host's active envelope, or
// nil when there is none. UI statuses are derived on every read.
func (s *Store) LoadActiveIssueState(ctx context.Context, hostKey string) (*models.IssueState, error) {
	env, err := s.ActiveEnvelope(ctx, hostKey)
	if err != nil || env == nil {
		return nil, err
	}

	signers, err := s.loadSigners(ctx, env.ID)
	if err != nil {
		return nil, err
	}
	docs, err := s.loadDocuments(ctx, env.ID)
	if err != nil {
		return nil, err
	}

	attachments := env.SignedAttachments
	if attachments == nil {
		attachments = []string{}
	}
	return &models.IssueState{
		EnvelopeID:        env.EnvelopeID,
		EnvelopeStatus:    env.Status,
		Sender:            env.Sender,
		Signers:           signers,
		SignerUIState:     models.DeriveUIStatus(env.Status, signers),
		Documents:         docs,
		SignedAttached:    env.SignedAttached,
		SignedAttachments: attachments,
	}, nil
}

func (s *Store) loadSigners(ctx context.Context, envPK int64) ([]models.Signer, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, recipient_id, routing_order, signer_type, identity_ref,
		email, name, status, created_at, updated_at FROM envelope_signers
		WHERE envelope_pk = ? ORDER BY routing_order ASC, id ASC`), envPK)
	if err != nil {
		return nil, wrap("load signers", err)
	}
	defer rows.Close()

	var (
		signers []models.Signer
		pks     []int64
	)
	for rows.Next() {
		var (
			pk                 int64
			signer             models.Signer
			identity, status   sql.NullString
			createdAt, updated int64
		)
		if err := rows.Scan(&pk, &signer.RecipientID, &signer.RoutingOrder, &signer.Type, &identity,
			&signer.Email, &signer.Name, &status, &createdAt, &updated); err != nil {
			return nil, wrap("scan signer", err)
		}
		signer.IdentityRef = identity.String
		signer.Status = status.String
		signer.CreatedAt = msToTime(createdAt)
		signer.UpdatedAt = msToTime(updated)
		signers = append(signers, signer)
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate signers", err)
	}
	rows.Close()

	for i, pk := range pks {
		tabs, err := s.loadTabs(ctx, pk)
		if err != nil {
			return nil, err
		}
		signers[i].Tabs = tabs
	}
	if signers == nil {
		signers = []models.Signer{}
	}
	return signers, nil
}

func (s *Store) loadTabs(ctx context.Context, signerPK int64) ([]models.Tab, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT document_id, tab_type, page_number, x_position, y_position,
		position_index FROM envelope_tabs WHERE signer_pk = ? ORDER BY document_id ASC, position_index ASC`), signerPK)
	if err != nil {
		return nil, wrap("load tabs", err)
	}
	defer rows.Close()

	var tabs []models.Tab
	for rows.Next() {
		var tab models.Tab
		if err := rows.Scan(&tab.DocumentID, &tab.TabType, &tab.PageNumber, &tab.XPosition, &tab.YPosition, &tab.PositionIndex); err != nil {
			return nil, wrap("scan tab", err)
		}
		tabs = append(tabs, tab)
	}
	return tabs, wrap("iterate tabs", rows.Err())
}

func (s *Store) loadDocuments(ctx context.Context, envPK int64) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT document_id, attachment_id, filename FROM envelope_documents
		WHERE envelope_pk = ? ORDER BY document_id ASC`), envPK)
	if err != nil {
		return nil, wrap("load documents", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var (
			doc          models.Document
			attachmentID sql.NullString
		)
		if err := rows.Scan(&doc.DocumentID, &attachmentID, &doc.Filename); err != nil {
			return nil, wrap("scan document", err)
		}
		doc.AttachmentID = attachmentID.String
		docs = append(docs, doc)
	}
	return docs, wrap("iterate documents", rows.Err())
}

// LoadEnvelopeDocuments returns the documents recorded for an envelope,
// ordered by document id. An unknown envelope yields an empty list.
func (s *Store) LoadEnvelopeDocuments(ctx context.Context, hostKey, envelopeID string) ([]models.Document, error) {
	env, err := s.GetEnvelope(ctx, hostKey, envelopeID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return []models.Document{}, nil
	}
	return s.loadDocuments(ctx, env.ID)
}

// LoadHistory lists the host's envelopes newest first. A limit outside
// 1..MaxHistoryLimit becomes DefaultHistoryLimit.
func (s *Store) LoadHistory(ctx context.Context, hostKey string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT envelope_id, status, active, sender, created_at, updated_at
		FROM envelopes WHERE host_key = ? ORDER BY id DESC LIMIT ?`), hostKey, limit)
	if err != nil {
		return nil, wrap("load history", err)
	}
	defer rows.Close()

	history := []models.HistoryEntry{}
	for rows.Next() {
		var (
			entry  models.HistoryEntry
			sender sql.NullString
		)
		if err := rows.Scan(&entry.EnvelopeID, &entry.Status, &entry.Active, &sender, &entry.CreatedAtMs, &entry.UpdatedAtMs); err != nil {
			return nil, wrap("scan history", err)
		}
		entry.Sender = sender.String
		history = append(history, entry)
	}
	return history, wrap("iterate history", rows.Err())
}

// ClearActive deactivates the host's active envelope. Rows are kept as
// history. It returns the number of envelopes deactivated.
func (s *Store) ClearActive(ctx context.Context, hostKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE envelopes SET active = ?, updated_at = ?
		WHERE host_key = ? AND active = ?`), false, s.nowMs(), hostKey, true)
	if err != nil {
		return 0, wrap("clear active envelope", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// HasEnvelope reports whether the envelope is recorded for the host.
func (s *Store) HasEnvelope(ctx context.Context, hostKey, envelopeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM envelopes WHERE host_key = ? AND envelope_id = ?`),
		strings.TrimSpace(hostKey), strings.TrimSpace(envelopeID)).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("check envelope", err)
	}
	return true, nil
}

// FindHostKeyByEnvelopeID returns the host of the newest row for the
// envelope, or "" when unknown.
func (s *Store) FindHostKeyByEnvelopeID(ctx context.Context, envelopeID string) (string, error) {
	var hostKey string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT host_key FROM envelopes WHERE envelope_id = ?
		ORDER BY id DESC LIMIT 1`), strings.TrimSpace(envelopeID)).Scan(&hostKey)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrap("find host by envelope", err)
	}
	return hostKey, nil
}

// MarkSignedAttached sets the signed marker and records the attached file
// names.
func (s *Store) MarkSignedAttached(ctx context.Context, hostKey, envelopeID string, filenames []string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE envelopes SET signed_attached = ?, signed_attachments = ?, updated_at = ?
		WHERE host_key = ? AND envelope_id = ?`), true, encodeList(filenames), s.nowMs(), hostKey, envelopeID)
	if err != nil {
		return wrap("mark signed attached", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundError("envelope")
	}
	return nil
}

// ListPollable returns active envelopes whose status may still change,
// least recently updated first.
func (s *Store) ListPollable(ctx context.Context, limit int) ([]models.Envelope, error) {
	if limit <= 0 || limit > MaxPollable {
		limit = MaxPollable
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+envelopeColumns+` FROM envelopes
		WHERE active = ? AND status NOT IN (?, ?, ?) ORDER BY updated_at ASC LIMIT ?`),
		true, models.StatusCompleted, models.StatusDeclined, models.StatusVoided, limit)
	if err != nil {
		return nil, wrap("list pollable envelopes", err)
	}
	defer rows.Close()

	var out []models.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, wrap("scan envelope", err)
		}
		out = append(out, *env)
	}
	return out, wrap("iterate envelopes", rows.Err())
}
