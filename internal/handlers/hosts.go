package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/models"
	"esign-sync/internal/reconciler"
)

const (
	defaultHistoryLimit = 15
	maxHistoryLimit     = 50
)

// envelopeRequest names an envelope of the host. An empty id means the
// active envelope.
type envelopeRequest struct {
	EnvelopeID string `json:"envelopeId"`
}

// AttachRequest selects what to attach. RemoteID defaults to the active
// envelope and Mode to the configured attach mode.
type AttachRequest struct {
	RemoteID string `json:"remoteId"`
	Mode     string `json:"mode"`
}

// GetState returns the host's active envelope
// @Summary Current envelope state
// @Description Returns the active envelope with signers, derived UI status per signer, documents and signed attachment markers.
// @Tags hosts
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key, e.g. OPS-42"
// @Success 200 {object} models.IssueState "Active envelope, empty when none"
// @Failure 400 {object} map[string]string "Invalid host key"
// @Router /api/hosts/{hostKey}/state [get]
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	hostKey, err := hostKeyVar(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid host key")
		return
	}
	state, err := h.storage.LoadActiveIssueState(r.Context(), hostKey)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to load envelope state")
		return
	}
	if state == nil {
		state = &models.IssueState{
			Signers:           []models.Signer{},
			SignerUIState:     []models.SignerUIState{},
			Documents:         []models.Document{},
			SignedAttachments: []string{},
		}
	}
	h.sendJSONResponse(w, http.StatusOK, state)
}

// GetHistory lists the host's envelopes, newest first
// @Summary Envelope history
// @Tags hosts
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Param limit query int false "Maximum entries (default 15, max 50)"
// @Success 200 {array} models.HistoryEntry "History"
// @Failure 400 {object} map[string]string "Invalid host key"
// @Router /api/hosts/{hostKey}/history [get]
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	hostKey, err := hostKeyVar(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid host key")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.sendJSONError(w, r, errors.ValidationError("limit must be a positive integer"), "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := h.storage.LoadHistory(r.Context(), hostKey, limit)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to load envelope history")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, history)
}

// ClearState detaches the host's active envelope
// @Summary Clear active envelope
// @Description Marks the active envelope inactive. The envelope and its history are kept.
// @Tags hosts
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Success 200 {object} map[string]int64 "Number of envelopes cleared"
// @Failure 403 {object} map[string]string "No edit permission"
// @Router /api/hosts/{hostKey}/state/clear [post]
func (h *Handlers) ClearState(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	hostKey, err := hostKeyVar(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid host key")
		return
	}
	if err := h.requireEdit(r.Context(), caller.Actor(), hostKey); err != nil {
		h.sendJSONError(w, r, err, "Permission denied")
		return
	}

	n, err := h.storage.ClearActive(r.Context(), hostKey)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to clear envelope state")
		return
	}
	h.logger.WithContext(r.Context()).Info("Active envelope cleared",
		logging.String("host_key", hostKey),
		logging.Int64("cleared", n),
	)
	h.sendJSONResponse(w, http.StatusOK, map[string]int64{"cleared": n})
}

// RefreshStatus pulls the envelope status and records it
// @Summary Refresh envelope status
// @Description Fetches status and recipients from DocuSign, records them and attaches signed documents once the envelope is completed.
// @Tags hosts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Param request body envelopeRequest false "Envelope to refresh, defaults to the active one"
// @Success 200 {object} reconciler.View "Current status"
// @Failure 401 {object} map[string]string "DocuSign not connected"
// @Failure 404 {object} map[string]string "No envelope"
// @Failure 502 {object} map[string]string "DocuSign error"
// @Router /api/hosts/{hostKey}/status/refresh [post]
func (h *Handlers) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reconcileRequest(w, r)
	if !ok {
		return
	}
	var body envelopeRequest
	if err := decodeJSON(w, r, &body, maxSendBodyBytes); err != nil {
		h.sendJSONError(w, r, err, "Invalid request body")
		return
	}
	if id := strings.TrimSpace(body.EnvelopeID); id != "" {
		req.EnvelopeID = id
	}

	view, err := h.reconciler.Refresh(r.Context(), req)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to refresh envelope status")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, view)
}

// LiveStatus reads the remote status without recording it
// @Summary Live envelope status
// @Tags hosts
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Param envelopeId query string false "Envelope id, defaults to the active one"
// @Success 200 {object} reconciler.View "Remote status"
// @Failure 401 {object} map[string]string "DocuSign not connected"
// @Failure 404 {object} map[string]string "No envelope"
// @Router /api/hosts/{hostKey}/status/live [get]
func (h *Handlers) LiveStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reconcileRequest(w, r)
	if !ok {
		return
	}
	req.EnvelopeID = strings.TrimSpace(r.URL.Query().Get("envelopeId"))

	view, err := h.reconciler.Live(r.Context(), req)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to read envelope status")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, view)
}

// AttachSigned stores the signed documents on the host record
// @Summary Attach signed documents
// @Description For a completed envelope, fetches the signed documents and attaches them to the host record once.
// @Tags hosts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Param request body AttachRequest false "Envelope and attach mode"
// @Success 200 {object} reconciler.View "Status with signed attachments"
// @Failure 400 {object} map[string]string "Invalid mode"
// @Failure 401 {object} map[string]string "DocuSign not connected"
// @Failure 404 {object} map[string]string "No envelope"
// @Router /api/hosts/{hostKey}/signed/attach [post]
func (h *Handlers) AttachSigned(w http.ResponseWriter, r *http.Request) {
	req, ok := h.reconcileRequest(w, r)
	if !ok {
		return
	}
	var body AttachRequest
	if err := decodeJSON(w, r, &body, maxSendBodyBytes); err != nil {
		h.sendJSONError(w, r, err, "Invalid request body")
		return
	}

	rawMode := body.Mode
	if strings.TrimSpace(rawMode) == "" {
		rawMode = h.config.SignedAttachMode
	}
	mode, err := reconciler.ParseMode(rawMode)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid attach mode")
		return
	}
	req.EnvelopeID = strings.TrimSpace(body.RemoteID)

	view, err := h.reconciler.AttachSigned(r.Context(), req, mode)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to attach signed documents")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, view)
}

// reconcileRequest builds the reconciler request for a host route and
// answers the error itself when it cannot.
func (h *Handlers) reconcileRequest(w http.ResponseWriter, r *http.Request) (reconciler.Request, bool) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return reconciler.Request{}, false
	}
	hostKey, err := hostKeyVar(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid host key")
		return reconciler.Request{}, false
	}
	return reconciler.Request{
		Actor:   caller.Actor(),
		HostKey: hostKey,
		Session: sessionCache(r.Context()),
	}, true
}
