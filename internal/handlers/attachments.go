package handlers

import (
	"io"
	"net/http"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/host"
)

const uploadFormField = "file"

// ListAttachments lists the files stored against a host record
// @Summary List host attachments
// @Tags attachments
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Success 200 {array} host.Attachment "Attachments"
// @Failure 400 {object} map[string]string "Invalid host key"
// @Router /api/hosts/{hostKey}/attachments [get]
func (h *Handlers) ListAttachments(w http.ResponseWriter, r *http.Request) {
	hostKey, err := hostKeyVar(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Invalid host key")
		return
	}
	list, err := h.attachments.List(r.Context(), hostKey)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to list attachments")
		return
	}
	if list == nil {
		list = []host.Attachment{}
	}
	h.sendJSONResponse(w, http.StatusOK, list)
}

// UploadAttachment stores a file against a host record
// @Summary Upload a host attachment
// @Tags attachments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param hostKey path string true "Host record key"
// @Param file formData file true "Document to store"
// @Success 201 {object} host.Attachment "Stored attachment"
// @Failure 400 {object} map[string]string "Missing or oversized file"
// @Failure 403 {object} map[string]string "No edit permission"
// @Router /api/hosts/{hostKey}/attachments [post]
func (h *Handlers) UploadAttachment(w http.ResponseWriter, r *http.Request) {
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
	actor := caller.Actor()
	if err := h.requireEdit(r.Context(), actor, hostKey); err != nil {
		h.sendJSONError(w, r, err, "Permission denied")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes+(1<<20))
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		h.sendJSONError(w, r, errors.ValidationError("a file is required in the \"file\" form field"), "Invalid upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		h.sendJSONError(w, r, errors.ValidationError("failed to read upload"), "Invalid upload")
		return
	}
	if len(data) > maxDocumentBytes {
		h.sendJSONError(w, r, errors.ValidationErrorf("file is larger than %d MB", maxDocumentBytes>>20), "Invalid upload")
		return
	}

	att, err := h.attachments.Create(r.Context(), actor, hostKey, header.Filename, data)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to store attachment")
		return
	}
	h.logger.WithContext(r.Context()).Debug("Attachment uploaded",
		logging.String("host_key", hostKey),
		logging.String("attachment_id", att.ID),
	)
	h.sendJSONResponse(w, http.StatusCreated, att)
}
