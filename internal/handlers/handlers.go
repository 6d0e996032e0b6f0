// Package handlers implements the HTTP API: push notification intake, the
// OAuth connect flow and the envelope endpoints the UI calls.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	xoauth2 "golang.org/x/oauth2"

	"esign-sync/internal/auth"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/common/validation"
	"esign-sync/internal/config"
	"esign-sync/internal/connect"
	"esign-sync/internal/docusign"
	"esign-sync/internal/envelope"
	"esign-sync/internal/host"
	"esign-sync/internal/models"
	"esign-sync/internal/oauth2"
	"esign-sync/internal/reconciler"
)

// Ledger is the part of the state store the handlers read and write
// directly. Everything else goes through the reconciler.
type Ledger interface {
	Health(ctx context.Context) error
	RecordSent(ctx context.Context, sent models.SentEnvelope) error
	ClearActive(ctx context.Context, hostKey string) (int64, error)
	LoadActiveIssueState(ctx context.Context, hostKey string) (*models.IssueState, error)
	LoadHistory(ctx context.Context, hostKey string, limit int) ([]models.HistoryEntry, error)
}

// TokenService resolves and manages a user's provider tokens.
type TokenService interface {
	GetValidAccessToken(ctx context.Context, userKey string, session oauth2.SessionCache) (string, bool)
	AccountContext(ctx context.Context, userKey string) (accountID, restBase string, err error)
	SaveExchange(ctx context.Context, userKey string, tok *xoauth2.Token, account *oauth2.Account, session oauth2.SessionCache) error
	Status(ctx context.Context, userKey string, session oauth2.SessionCache) oauth2.Status
	Disconnect(ctx context.Context, userKey string, session oauth2.SessionCache) error
}

// OAuthProvider runs the authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*xoauth2.Token, error)
	UserInfo(ctx context.Context, accessToken string) (*oauth2.Account, error)
}

// EnvelopeSender creates envelopes at the provider.
type EnvelopeSender interface {
	CreateEnvelope(ctx context.Context, cred docusign.Credentials, request interface{}) (*docusign.CreateResult, error)
}

// WebhookProcessor handles one push notification.
type WebhookProcessor interface {
	Process(r *http.Request) (*connect.Result, error)
}

// StatusService reconciles remote envelope state.
type StatusService interface {
	Refresh(ctx context.Context, req reconciler.Request) (*reconciler.View, error)
	Live(ctx context.Context, req reconciler.Request) (*reconciler.View, error)
	AttachSigned(ctx context.Context, req reconciler.Request, mode reconciler.Mode) (*reconciler.View, error)
	Download(ctx context.Context, req reconciler.Request, documentID string) (*reconciler.Document, error)
}

// HealthChecker is an optional dependency that can report reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the collaborators a Handlers needs. Auth may be nil, in which
// case logout only clears the session cookie.
type Deps struct {
	Config      *config.Config
	Storage     Ledger
	Tokens      TokenService
	Provider    OAuthProvider
	Sender      EnvelopeSender
	Builder     *envelope.Builder
	Processor   WebhookProcessor
	Reconciler  StatusService
	Attachments host.Attachments
	Permissions host.Permissions
	Directory   host.Directory
	Auth        *auth.Auth
	// Cache is the shared redis, nil when not configured.
	Cache  HealthChecker
	Logger logging.Logger
}

type Handlers struct {
	config      *config.Config
	storage     Ledger
	tokens      TokenService
	provider    OAuthProvider
	sender      EnvelopeSender
	builder     *envelope.Builder
	processor   WebhookProcessor
	reconciler  StatusService
	attachments host.Attachments
	permissions host.Permissions
	directory   host.Directory
	auth        *auth.Auth
	cache       HealthChecker
	logger      logging.Logger
}

func New(d Deps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	cfg := d.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	directory := d.Directory
	if directory == nil {
		directory = host.AddressDirectory{}
	}
	permissions := d.Permissions
	if permissions == nil {
		permissions = host.AllowAll{}
	}
	return &Handlers{
		config:      cfg,
		storage:     d.Storage,
		tokens:      d.Tokens,
		provider:    d.Provider,
		sender:      d.Sender,
		builder:     d.Builder,
		processor:   d.Processor,
		reconciler:  d.Reconciler,
		attachments: d.Attachments,
		permissions: permissions,
		directory:   directory,
		auth:        d.Auth,
		cache:       d.Cache,
		logger:      logger.WithFields(logging.String("component", "handlers")),
	}
}

// sendJSONResponse writes v as JSON with the given status.
func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendJSONError answers with {"error": message}. The status and message are
// derived from err; fallback is shown when err carries nothing user-safe.
func (h *Handlers) sendJSONError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := errors.StatusCode(err)
	msg := errors.UserMessage(err, fallback)
	if appErr, ok := errors.As(err); ok && appErr.Type == errors.ErrTypeAuth {
		msg = appErr.Message
	}

	logger := h.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(fallback, err, logging.Int("status", status))
	} else {
		logger.Warn(fallback, logging.Err(err), logging.Int("status", status))
	}
	h.sendJSONResponse(w, status, map[string]string{"error": msg})
}

// identity returns the authenticated caller. Routes under /api always run
// behind auth.RequireAuth, so a missing identity is a wiring fault.
func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.UserKey == "" {
		return auth.Identity{}, errors.AuthError("authentication required")
	}
	return id, nil
}

// sessionCache returns the caller's session as a token cache tier. A
// missing session yields a nil interface, not a typed nil.
func sessionCache(ctx context.Context) oauth2.SessionCache {
	if s := auth.SessionFromContext(ctx); s != nil {
		return s
	}
	return nil
}

func hostKeyVar(r *http.Request) (string, error) {
	key := strings.TrimSpace(mux.Vars(r)["hostKey"])
	if !validation.IsHostKey(key) {
		return "", errors.ValidationErrorf("invalid host key %q", key)
	}
	return key, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.ValidationError("invalid JSON body")
	}
	return nil
}

func (h *Handlers) requireEdit(ctx context.Context, actor models.Actor, hostKey string) error {
	ok, err := h.permissions.CanEdit(ctx, actor, hostKey)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ForbiddenError("you do not have permission to edit " + hostKey)
	}
	return nil
}
