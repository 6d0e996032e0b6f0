package handlers

import (
	"net/http"
	"strings"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/oauth2"
)

// StartConnect begins the PKCE authorization flow
// @Summary Connect a DocuSign account
// @Description Stores a PKCE verifier and CSRF state in the caller's session and redirects to the DocuSign consent page.
// @Tags oauth
// @Security BearerAuth
// @Param returnTo query string false "Relative path to return to after connecting"
// @Success 302 {string} string "Redirect to DocuSign"
// @Failure 401 {object} map[string]string "Authentication required"
// @Router /oauth/docusign/connect [get]
func (h *Handlers) StartConnect(w http.ResponseWriter, r *http.Request) {
	if _, err := identity(r); err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.sendJSONError(w, r, errors.AuthError("a session is required to connect"), "Authentication required")
		return
	}

	state, err := oauth2.NewState()
	if err != nil {
		h.sendJSONError(w, r, errors.InternalError("generate oauth state", err), "Failed to start DocuSign connect")
		return
	}
	verifier := oauth2.NewVerifier()
	session.BeginConnect(verifier, state, safeReturnTo(r.URL.Query().Get("returnTo")))

	http.Redirect(w, r, h.provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// ConnectCallback completes the PKCE authorization flow
// @Summary DocuSign OAuth callback
// @Description Validates state, exchanges the code with the stored verifier, discovers the account and stores the tokens.
// @Tags oauth
// @Security BearerAuth
// @Param code query string true "Authorization code"
// @Param state query string true "CSRF state"
// @Success 302 {string} string "Redirect to the return path"
// @Failure 400 {object} map[string]string "Invalid state or denied consent"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 502 {object} map[string]string "DocuSign rejected the exchange"
// @Router /oauth/docusign/callback [get]
func (h *Handlers) ConnectCallback(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.sendJSONError(w, r, errors.AuthError("no connect in progress for this session"), "Authentication required")
		return
	}

	q := r.URL.Query()
	verifier, returnTo, ok := session.FinishConnect(q.Get("state"))
	if denied := q.Get("error"); denied != "" {
		h.sendJSONError(w, r, errors.ValidationErrorf("DocuSign authorization failed: %s", denied), "DocuSign authorization failed")
		return
	}
	if !ok {
		h.sendJSONError(w, r, errors.ValidationError("invalid or expired OAuth state"), "Invalid OAuth state")
		return
	}
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		h.sendJSONError(w, r, errors.ValidationError("missing authorization code"), "Missing authorization code")
		return
	}

	ctx := r.Context()
	tok, err := h.provider.Exchange(ctx, code, verifier)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to connect DocuSign")
		return
	}
	account, err := h.provider.UserInfo(ctx, tok.AccessToken)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to read DocuSign account")
		return
	}
	if err := h.tokens.SaveExchange(ctx, caller.UserKey, tok, account, session); err != nil {
		h.sendJSONError(w, r, err, "Failed to store DocuSign tokens")
		return
	}

	h.logger.WithContext(ctx).Info("DocuSign account connected",
		logging.String("account_id", account.AccountID),
		logging.String("rest_base", account.RestBase()),
	)
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// TokenStatus reports whether the caller has a usable DocuSign token
// @Summary DocuSign connection status
// @Tags oauth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} oauth2.Status "Connection status"
// @Failure 401 {object} map[string]string "Authentication required"
// @Router /api/docusign/token/status [get]
func (h *Handlers) TokenStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, h.tokens.Status(r.Context(), caller.UserKey, sessionCache(r.Context())))
}

// DisconnectToken forgets the caller's DocuSign tokens
// @Summary Disconnect DocuSign
// @Description Deletes the stored token record and clears cached access tokens.
// @Tags oauth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]bool "Disconnected"
// @Failure 401 {object} map[string]string "Authentication required"
// @Failure 500 {object} map[string]string "Failed to disconnect"
// @Router /api/docusign/token/disconnect [post]
func (h *Handlers) DisconnectToken(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.sendJSONError(w, r, err, "Authentication required")
		return
	}
	if err := h.tokens.Disconnect(r.Context(), caller.UserKey, sessionCache(r.Context())); err != nil {
		h.sendJSONError(w, r, err, "Failed to disconnect DocuSign")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, map[string]bool{"disconnected": true})
}

// safeReturnTo keeps post-connect redirects on this origin.
func safeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return "/"
	}
	return raw
}
