package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"esign-sync/internal/reconciler"
)

// DownloadSigned streams a signed document
// @Summary Download a signed document
// @Description Fetches signed content from DocuSign. documentId defaults to the combined file.
// @Tags envelopes
// @Produce application/pdf
// @Security BearerAuth
// @Param envelopeId query string true "Envelope id"
// @Param documentId query string false "Document id or combined"
// @Param hostKey query string false "Host record key, looked up from the envelope when omitted"
// @Success 200 {file} binary "PDF content"
// @Failure 400 {object} map[string]string "Missing envelope id"
// @Failure 401 {object} map[string]string "DocuSign not connected"
// @Failure 502 {object} map[string]string "DocuSign error"
// @Router /api/signed/download [get]
func (h *Handlers) DownloadSigned(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	q := r.URL.Query()
	req := reconciler.Request{
		Actor:      caller.Actor(),
		HostKey:    strings.TrimSpace(q.Get("hostKey")),
		EnvelopeID: q.Get("envelopeId"),
		Session:    sessionCache(r.Context()),
	}

	doc, err := h.reconciler.Download(r.Context(), req, q.Get("documentId"))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to download signed document")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
