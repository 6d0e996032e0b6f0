package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"esign-sync/internal/auth"
	"esign-sync/internal/handlers"
	"esign-sync/internal/middleware"
	"esign-sync/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the application. Either limiter
// may be nil.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, apiLimiter, webhookLimiter *ratelimit.Limiter) {
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Swagger UI (no auth required)
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Push notifications authenticate by HMAC or shared secret, not by caller
	var webhook http.Handler = http.HandlerFunc(h.HandleConnectWebhook)
	if webhookLimiter != nil {
		webhook = webhookLimiter.HTTPMiddleware(ratelimit.IPBasedKey)(webhook)
	}
	router.Handle("/webhooks/docusign/connect", webhook).Methods("POST")

	// OAuth connect flow runs in the browser session of the caller
	oauth := router.PathPrefix("/oauth/docusign").Subrouter()
	oauth.Use(authMiddleware)
	oauth.HandleFunc("/connect", h.StartConnect).Methods("GET")
	oauth.HandleFunc("/callback", h.ConnectCallback).Methods("GET")

	// Protected routes - require authentication and rate limiting
	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)
	if apiLimiter != nil {
		api.Use(apiLimiter.HTTPMiddleware(UserKey))
	}

	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	api.HandleFunc("/docusign/token/status", h.TokenStatus).Methods("GET")
	api.HandleFunc("/docusign/token/disconnect", h.DisconnectToken).Methods("POST")

	api.HandleFunc("/envelopes", h.SendEnvelope).Methods("POST")
	api.HandleFunc("/signed/download", h.DownloadSigned).Methods("GET")

	hosts := api.PathPrefix("/hosts/{hostKey}").Subrouter()
	hosts.HandleFunc("/state", h.GetState).Methods("GET")
	hosts.HandleFunc("/state/clear", h.ClearState).Methods("POST")
	hosts.HandleFunc("/history", h.GetHistory).Methods("GET")
	hosts.HandleFunc("/status/refresh", h.RefreshStatus).Methods("POST")
	hosts.HandleFunc("/status/live", h.LiveStatus).Methods("GET")
	hosts.HandleFunc("/signed/attach", h.AttachSigned).Methods("POST")
	hosts.HandleFunc("/attachments", h.ListAttachments).Methods("GET")
	hosts.HandleFunc("/attachments", h.UploadAttachment).Methods("POST")

	api.Handle("/diagnostics", auth.RequireAdmin(http.HandlerFunc(h.Diagnostics))).Methods("GET")
}
