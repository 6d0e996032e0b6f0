package handlers

import (
	"net/http"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
)

// Logout revokes the caller's token and ends the session
// @Summary Log out
// @Description Revokes the presented token when redis is configured and drops the server-side session.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]bool "Logged out"
// @Failure 401 {object} map[string]string "Authentication required"
// @Router /api/auth/logout [post]
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	revoked := false
	if h.auth != nil {
		err := h.auth.Revoke(ctx, auth.TokenFromRequest(r))
		switch {
		case err == nil:
			revoked = true
		case errors.IsType(err, errors.ErrTypeConfig):
			// No revocation store; the token lives until it expires.
		default:
			h.logger.WithContext(ctx).Warn("Failed to revoke token", logging.Err(err))
		}
		if session := auth.SessionFromContext(ctx); session != nil {
			h.auth.Sessions().Delete(session.ID)
		}
	}

	for _, name := range []string{auth.SessionCookie, auth.TokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.sendJSONResponse(w, http.StatusOK, map[string]bool{"loggedOut": true, "revoked": revoked})
}
