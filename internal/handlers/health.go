package handlers

import (
	"net/http"
	"time"
)

// HealthCheck reports whether the ledger is reachable
// @Summary Health check
// @Description Returns the health of the service and its state store
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service is healthy"
// @Failure 503 {object} map[string]interface{} "State store unavailable"
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.storage.Health(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).Warn("Health check failed")
		resp["status"] = "unhealthy"
		resp["storage"] = "unavailable"
		h.sendJSONResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["storage"] = "ok"
	h.sendJSONResponse(w, http.StatusOK, resp)
}

// Diagnostics lists which settings are configured without revealing them
// @Summary Configuration diagnostics
// @Description Reports which DocuSign, webhook and key settings are present. Values are never returned.
// @Tags system
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "Presence flags"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 403 {object} map[string]string "Admin access required"
// @Router /api/diagnostics [get]
func (h *Handlers) Diagnostics(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"config":           h.config.Presence(),
		"databaseType":     h.config.DatabaseType,
		"storageHealthy":   h.storage.Health(r.Context()) == nil,
		"signedAttachMode": h.config.SignedAttachMode,
	}
	if h.cache != nil {
		resp["redisHealthy"] = h.cache.Health(r.Context()) == nil
	}
	h.sendJSONResponse(w, http.StatusOK, resp)
}
