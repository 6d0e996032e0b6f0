package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esign-sync/internal/auth"
	"esign-sync/internal/config"
	"esign-sync/internal/locks"
	"esign-sync/internal/oauth2"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Port:                  "0",
		DatabaseType:          "sqlite",
		DatabasePath:          filepath.Join(dir, "esign.db"),
		RateLimitEnabled:      false,
		JWTSecret:             strings.Repeat("s", 32),
		DocuSignClientID:      "client-id",
		DocuSignRedirectURI:   "http://localhost:8080/oauth/docusign/callback",
		DocuSignOAuthBase:     "https://account-d.docusign.com",
		DocuSignRestBase:      "https://demo.docusign.net/restapi",
		MasterPassphrase:      "correct horse battery staple",
		HTTPConnectTimeoutMs:  "1000",
		HTTPSocketTimeoutMs:   "1000",
		HTTPPoolWaitTimeoutMs: "1000",
		APIRatePerSec:         "0",
		SignedAttachMode:      "individual",
		AttachmentsDir:        filepath.Join(dir, "attachments"),
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, http.Handler) {
	t.Helper()
	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	router := mux.NewRouter()
	apiLimiter, webhookLimiter := app.InitializeRateLimiters()
	SetupRoutes(router, app.Handlers(), app.Auth.RequireAuth, apiLimiter, webhookLimiter)
	return app, router
}

func bearer(t *testing.T, app *App, identity auth.Identity) string {
	t.Helper()
	token, err := app.Auth.GenerateJWT(identity)
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(router http.Handler, method, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNew_WiresLocalComponents(t *testing.T) {
	app, _ := newTestApp(t, testConfig(t))

	assert.Nil(t, app.RedisClient)
	assert.IsType(t, &locks.LocalManager{}, app.Locks)
	assert.NotNil(t, app.Codec)
	assert.NotNil(t, app.Reconciler)
	assert.NotNil(t, app.Processor)
	assert.Nil(t, app.Poller, "polling is off when the schedule is empty")
	require.NoError(t, app.Storage.Health(context.Background()))
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddress = mr.Addr()
	cfg.RedisDB = "0"
	cfg.RedisPoolSize = "5"
	cfg.StatusPollSchedule = "@every 1h"

	app, _ := newTestApp(t, cfg)

	require.NotNil(t, app.RedisClient)
	assert.IsType(t, &locks.RedsyncManager{}, app.Locks)
	require.NotNil(t, app.Poller)

	require.NoError(t, app.startBackground())
	require.NoError(t, app.Shutdown(context.Background()))
}

func TestNew_ContinuesWithoutUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddress = "127.0.0.1:1"

	app, _ := newTestApp(t, cfg)
	assert.Nil(t, app.RedisClient)
	assert.IsType(t, &locks.LocalManager{}, app.Locks)
}

func TestRoutes(t *testing.T) {
	app, router := newTestApp(t, testConfig(t))
	user := bearer(t, app, auth.Identity{UserKey: "alice"})
	admin := bearer(t, app, auth.Identity{UserKey: "root", Admin: true})

	tests := []struct {
		name   string
		method string
		target string
		auth   string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"api requires a caller", http.MethodGet, "/api/hosts/OPS-1/state", "", http.StatusUnauthorized},
		{"oauth requires a caller", http.MethodGet, "/oauth/docusign/connect", "", http.StatusUnauthorized},
		{"state for a caller", http.MethodGet, "/api/hosts/OPS-1/state", user, http.StatusOK},
		{"history for a caller", http.MethodGet, "/api/hosts/OPS-1/history?limit=5", user, http.StatusOK},
		{"malformed host key", http.MethodGet, "/api/hosts/ops/state", user, http.StatusBadRequest},
		{"token status", http.MethodGet, "/api/docusign/token/status", user, http.StatusOK},
		{"attachments", http.MethodGet, "/api/hosts/OPS-1/attachments", user, http.StatusOK},
		{"diagnostics need admin", http.MethodGet, "/api/diagnostics", user, http.StatusForbidden},
		{"diagnostics for admin", http.MethodGet, "/api/diagnostics", admin, http.StatusOK},
		{"wrong method", http.MethodDelete, "/api/hosts/OPS-1/state", user, http.StatusMethodNotAllowed},
		{"webhook is public and acknowledges junk", http.MethodPost, "/webhooks/docusign/connect", "", http.StatusOK},
		{"refresh without an envelope", http.MethodPost, "/api/hosts/OPS-1/status/refresh", user, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.method, tt.target, tt.auth)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutes_TokenStatusDisconnected(t *testing.T) {
	app, router := newTestApp(t, testConfig(t))

	rec := serve(router, http.MethodGet, "/api/docusign/token/status", bearer(t, app, auth.Identity{UserKey: "alice"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":false}`, rec.Body.String())

	assert.Equal(t, oauth2.Status{}, app.Tokens.Status(context.Background(), "alice", nil))
}

func TestRoutes_RateLimitPerCaller(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitEnabled = true
	cfg.RateLimitDefault = "2"
	cfg.RateLimitWindow = "1h"
	app, router := newTestApp(t, cfg)

	alice := bearer(t, app, auth.Identity{UserKey: "alice"})
	bob := bearer(t, app, auth.Identity{UserKey: "bob"})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/hosts/OPS-1/state", alice).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/hosts/OPS-1/state", alice).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/hosts/OPS-1/state", bob).Code)
}

func TestUserKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1:1234", UserKey(req))

	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserKey: "alice"}))
	assert.Equal(t, "user:alice", UserKey(req))
}
