package handlers

import (
	"net/http"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
)

// HandleConnectWebhook accepts DocuSign Connect push notifications
// @Summary Receive a DocuSign Connect notification
// @Description Verifies the notification (HMAC or shared secret), resolves the host record and records the status change.
// @Description Anything short of an authentication failure is acknowledged with 200 so the sender does not retry it.
// @Tags webhooks
// @Accept xml
// @Produce json
// @Param secret query string false "Shared secret, used when HMAC does not establish trust"
// @Param hostKey query string false "Host key, honored for untrusted calls or when debugging is enabled"
// @Param X-DocuSign-Signature-1 header string false "Base64 HMAC of the raw body"
// @Success 200 {object} connect.Result "Applied, duplicate or ignored"
// @Failure 401 {object} map[string]string "Notification could not be authenticated"
// @Router /webhooks/docusign/connect [post]
func (h *Handlers) HandleConnectWebhook(w http.ResponseWriter, r *http.Request) {
	result, err := h.processor.Process(r)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.IsType(err, errors.ErrTypeAuth) {
			status = http.StatusInternalServerError
		}
		h.logger.WithContext(r.Context()).Warn("Rejected push notification", logging.Err(err))
		h.sendJSONResponse(w, status, map[string]string{"error": "unauthorized"})
		return
	}
	h.sendJSONResponse(w, http.StatusOK, result)
}
