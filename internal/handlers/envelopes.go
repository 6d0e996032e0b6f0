package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/common/validation"
	"esign-sync/internal/docusign"
	"esign-sync/internal/models"
)

const (
	maxSendBodyBytes = 1 << 20
	maxDocumentBytes = 25 << 20
)

// SendRequest asks for an envelope built from host attachments.
type SendRequest struct {
	HostKey       string               `json:"hostKey" validate:"required,host_key"`
	AttachmentIDs []string             `json:"attachmentIds" validate:"required,min=1,max=50,dive,required"`
	Signers       []models.SignerInput `json:"signers" validate:"required,min=1,max=50,dive"`
}

// SendResponse is returned once the provider accepted the envelope.
type SendResponse struct {
	EnvelopeID         string `json:"envelopeId"`
	Status             string `json:"status"`
	PersistenceWarning string `json:"persistenceWarning,omitempty"`
}

const persistenceWarning = "Envelope was sent but could not be recorded locally. Refresh the status to recover it."

// SendEnvelope creates an envelope for a host record
// @Summary Send an envelope
// @Description Builds an envelope from the selected host attachments and signers, sends it and records it as the host's active envelope.
// @Description Attachment order defines document ids 1..N; signer order defines routing order.
// @Tags envelopes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SendRequest true "Documents and signers"
// @Success 200 {object} SendResponse "Envelope sent"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 401 {object} map[string]string "DocuSign not connected"
// @Failure 403 {object} map[string]string "No edit permission"
// @Failure 502 {object} map[string]string "DocuSign rejected the envelope"
// @Router /api/envelopes [post]
func (h *Handlers) SendEnvelope(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	ctx := r.Context()

	var req SendRequest
	if err := decodeJSON(w, r, &req, maxSendBodyBytes); err != nil {
		h.sendJSONError(w, r, err, "Invalid request body")
		return
	}
	req.HostKey = strings.TrimSpace(req.HostKey)
	if err := validation.ValidateStruct(&req); err != nil {
		h.sendJSONError(w, r, err, "Invalid send request")
		return
	}

	signers, err := h.resolveSigners(ctx, req.Signers)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid signers")
		return
	}

	actor := caller.Actor()
	if err := h.requireEdit(ctx, actor, req.HostKey); err != nil {
		h.sendJSONError(w, r, err, "Permission denied")
		return
	}

	session := sessionCache(ctx)
	accessToken, ok := h.tokens.GetValidAccessToken(ctx, caller.UserKey, session)
	if !ok {
		h.sendJSONError(w, r, errors.AuthError("DocuSign not connected"), "DocuSign not connected")
		return
	}
	accountID, restBase, err := h.tokens.AccountContext(ctx, caller.UserKey)
	if err != nil {
		h.sendJSONError(w, r, err, "DocuSign not connected")
		return
	}

	documents, err := h.loadDocuments(ctx, req.HostKey, req.AttachmentIDs)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to read attachments")
		return
	}

	built, err := h.builder.Build(req.HostKey, documents, signers)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to build envelope")
		return
	}

	cred := docusign.Credentials{AccessToken: accessToken, AccountID: accountID, RestBase: restBase}
	created, err := h.sender.CreateEnvelope(ctx, cred, built.Request)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to send envelope")
		return
	}

	logger := h.logger.WithContext(ctx).WithFields(
		logging.String("host_key", req.HostKey),
		logging.String("envelope_id", created.EnvelopeID),
	)

	status := created.Status
	if status == "" {
		status = models.StatusSent
	}
	resp := SendResponse{EnvelopeID: created.EnvelopeID, Status: status}

	err = h.storage.RecordSent(ctx, models.SentEnvelope{
		HostKey:      req.HostKey,
		EnvelopeID:   created.EnvelopeID,
		Status:       status,
		Sender:       caller.UserKey,
		Documents:    built.Documents,
		Signers:      built.Signers,
		RequestJSON:  built.AuditJSON(),
		ResponseJSON: string(created.Raw),
	})
	if err != nil {
		// The provider already holds the envelope; a refresh can rebuild it.
		logger.Error("Envelope sent but not recorded", err)
		resp.PersistenceWarning = persistenceWarning
	} else {
		logger.Info("Envelope sent",
			logging.Int("documents", len(built.Documents)),
			logging.Int("signers", len(built.Signers)),
		)
	}

	h.sendJSONResponse(w, http.StatusOK, resp)
}

// resolveSigners checks coordinates and addresses and fills host users from
// the directory.
func (h *Handlers) resolveSigners(ctx context.Context, in []models.SignerInput) ([]models.SignerInput, error) {
	out := make([]models.SignerInput, 0, len(in))
	for i, s := range in {
		s.Type = strings.ToUpper(strings.TrimSpace(s.Type))
		s.Email = strings.TrimSpace(s.Email)
		s.Name = strings.TrimSpace(s.Name)

		if (models.Position{Page: s.Page, X: s.X, Y: s.Y}).Partial() {
			return nil, errors.ValidationErrorf("signer at index %d: page, x and y must be given together", i)
		}
		for j, p := range s.Positions {
			if p.Partial() {
				return nil, errors.ValidationErrorf("signer at index %d: position %d needs page, x and y", i, j)
			}
		}

		switch s.Type {
		case models.SignerTypeHostUser:
			if s.Email == "" {
				if strings.TrimSpace(s.IdentityRef) == "" {
					return nil, errors.ValidationErrorf("signer at index %d: identityRef or email is required", i)
				}
				email, name, err := h.directory.Lookup(ctx, s.IdentityRef)
				if err != nil {
					return nil, errors.ValidationErrorf("signer at index %d: user %q could not be resolved", i, s.IdentityRef)
				}
				s.Email = email
				if s.Name == "" {
					s.Name = name
				}
			}
		default:
			s.Type = models.SignerTypeExternal
			if !strings.Contains(s.Email, "@") {
				return nil, errors.ValidationErrorf("signer at index %d: a valid email address is required", i)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// loadDocuments reads the selected attachments in order. The i-th
// attachment becomes document id i+1.
func (h *Handlers) loadDocuments(ctx context.Context, hostKey string, ids []string) ([]models.DocumentInput, error) {
	docs := make([]models.DocumentInput, 0, len(ids))
	for i, id := range ids {
		att, rc, err := h.attachments.Open(ctx, hostKey, strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes+1))
		rc.Close()
		if err != nil {
			return nil, errors.InternalError("read attachment "+id, err)
		}
		if len(content) > maxDocumentBytes {
			return nil, errors.ValidationErrorf("attachment %q is larger than %d MB", att.Filename, maxDocumentBytes>>20)
		}
		docs = append(docs, models.DocumentInput{
			DocumentID:   strconv.Itoa(i + 1),
			AttachmentID: att.ID,
			Filename:     att.Filename,
			Content:      content,
		})
	}
	return docs, nil
}
