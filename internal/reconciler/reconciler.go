// Package reconciler pulls envelope and recipient status from the remote
// signing service into the local ledger and retrieves signed documents once
// an envelope completes. It serves user-triggered refreshes, the webhook
// completion hook and the background poller.
package reconciler

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/docusign"
	"esign-sync/internal/host"
	"esign-sync/internal/locks"
	"esign-sync/internal/models"
	"esign-sync/internal/oauth2"
)

// DownloadPath is the route the UI uses to fetch signed content.
const DownloadPath = "/api/signed/download"

// Remote is the slice of the signing service the reconciler reads.
type Remote interface {
	GetEnvelope(ctx context.Context, cred docusign.Credentials, envelopeID string) (*docusign.EnvelopeSummary, error)
	GetRecipients(ctx context.Context, cred docusign.Credentials, envelopeID string) ([]models.RecipientStatus, error)
	ListDocuments(ctx context.Context, cred docusign.Credentials, envelopeID string) ([]docusign.DocumentInfo, error)
	GetDocument(ctx context.Context, cred docusign.Credentials, envelopeID, documentID string) ([]byte, error)
}

// Tokens resolves a user's access token and account context.
type Tokens interface {
	GetValidAccessToken(ctx context.Context, userKey string, session oauth2.SessionCache) (string, bool)
	AccountContext(ctx context.Context, userKey string) (accountID, restBase string, err error)
}

// Store is the part of the ledger the reconciler reads and writes.
type Store interface {
	GetEnvelope(ctx context.Context, hostKey, envelopeID string) (*models.Envelope, error)
	ActiveEnvelope(ctx context.Context, hostKey string) (*models.Envelope, error)
	FindHostKeyByEnvelopeID(ctx context.Context, envelopeID string) (string, error)
	LoadEnvelopeDocuments(ctx context.Context, hostKey, envelopeID string) ([]models.Document, error)
	RecordStatusUpdate(ctx context.Context, update models.StatusUpdate) error
	MarkSignedAttached(ctx context.Context, hostKey, envelopeID string, filenames []string) error
	ListPollable(ctx context.Context, limit int) ([]models.Envelope, error)
}

// Request identifies what to reconcile and on whose behalf. EnvelopeID may
// be empty to mean the host's active envelope. Session is the caller's
// session token tier and may be nil.
type Request struct {
	Actor      models.Actor
	HostKey    string
	EnvelopeID string
	Session    oauth2.SessionCache
}

// View is the status response shared by refresh, live and attach.
type View struct {
	EnvelopeID         string                   `json:"envelopeId"`
	EnvelopeStatus     string                   `json:"envelopeStatus"`
	Signers            []models.RecipientStatus `json:"signers"`
	SignerUIState      []models.SignerUIState   `json:"signerUiState"`
	SignedAttached     bool                     `json:"signedAttached"`
	SignedAttachments  []string                 `json:"signedAttachments"`
	SignedDownloadURL  string                   `json:"signedDownloadUrl,omitempty"`
	PersistenceWarning string                   `json:"persistenceWarning,omitempty"`
}

// Reconciler merges remote state into the ledger.
type Reconciler struct {
	remote      Remote
	tokens      Tokens
	store       Store
	attachments host.Attachments
	permissions host.Permissions
	locks       locks.LockManagerInterface
	logger      logging.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLockManager sets the manager guarding signed-document attach. The
// default is in-process.
func WithLockManager(lm locks.LockManagerInterface) Option {
	return func(r *Reconciler) {
		if lm != nil {
			r.locks = lm
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func New(remote Remote, tokens Tokens, store Store, attachments host.Attachments, permissions host.Permissions, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote:      remote,
		tokens:      tokens,
		store:       store,
		attachments: attachments,
		permissions: permissions,
		locks:       locks.NewLocalManager(),
		logger:      logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithFields(logging.String("component", "reconciler"))
	return r
}

// Refresh fetches the envelope status and recipients, records them and,
// when the envelope is completed, attaches the signed documents.
func (r *Reconciler) Refresh(ctx context.Context, req Request) (*View, error) {
	if err := r.requireEdit(ctx, req.Actor, req.HostKey); err != nil {
		return nil, err
	}
	env, err := r.resolveEnvelope(ctx, req.HostKey, req.EnvelopeID)
	if err != nil {
		return nil, err
	}
	cred, err := r.credentials(ctx, tokenUser(req.Actor, env), req.Session)
	if err != nil {
		return nil, err
	}

	status, recipients, err := r.fetch(ctx, cred, env.EnvelopeID)
	if err != nil {
		return nil, err
	}

	view := newView(env, status, recipients)
	err = r.store.RecordStatusUpdate(ctx, models.StatusUpdate{
		HostKey:    env.HostKey,
		EnvelopeID: env.EnvelopeID,
		Status:     status,
		Recipients: recipients,
		EventType:  models.EventStatusRefresh,
		Actor:      req.Actor,
	})
	if err != nil {
		r.logger.Error("Failed to record refreshed status", err,
			logging.String("host_key", env.HostKey),
			logging.String("envelope_id", env.EnvelopeID),
		)
		view.PersistenceWarning = "status fetched but could not be saved"
		return view, nil
	}

	if models.NormalizeStatus(status) == models.StatusCompleted {
		outcome, err := r.attach(ctx, req.Actor, cred, env.HostKey, env.EnvelopeID, ModeIndividual)
		if err != nil {
			r.logger.Warn("Signed document attach failed during refresh",
				logging.String("host_key", env.HostKey),
				logging.String("envelope_id", env.EnvelopeID),
				logging.Err(err),
			)
		}
		if outcome != nil {
			view.SignedAttached = outcome.Marked
			view.SignedAttachments = outcome.Files
		}
	}

	r.logger.Info("Envelope status refreshed",
		logging.String("host_key", env.HostKey),
		logging.String("envelope_id", env.EnvelopeID),
		logging.String("status", view.EnvelopeStatus),
		logging.Int("recipients", len(recipients)),
	)
	return view, nil
}

// Live reads the remote status without writing anything.
func (r *Reconciler) Live(ctx context.Context, req Request) (*View, error) {
	if req.Actor.IsZero() {
		return nil, errors.AuthError("authentication required")
	}
	env, err := r.resolveEnvelope(ctx, req.HostKey, req.EnvelopeID)
	if err != nil {
		return nil, err
	}
	cred, err := r.credentials(ctx, tokenUser(req.Actor, env), req.Session)
	if err != nil {
		return nil, err
	}
	status, recipients, err := r.fetch(ctx, cred, env.EnvelopeID)
	if err != nil {
		return nil, err
	}
	return newView(env, status, recipients), nil
}

// fetch reads envelope status and recipients concurrently.
func (r *Reconciler) fetch(ctx context.Context, cred docusign.Credentials, envelopeID string) (string, []models.RecipientStatus, error) {
	var (
		summary    *docusign.EnvelopeSummary
		recipients []models.RecipientStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = r.remote.GetEnvelope(gctx, cred, envelopeID)
		return err
	})
	g.Go(func() error {
		var err error
		recipients, err = r.remote.GetRecipients(gctx, cred, envelopeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", nil, err
	}
	return models.NormalizeStatus(summary.Status), recipients, nil
}

func (r *Reconciler) resolveEnvelope(ctx context.Context, hostKey, envelopeID string) (*models.Envelope, error) {
	hostKey = strings.TrimSpace(hostKey)
	envelopeID = strings.Trim(strings.TrimSpace(envelopeID), `"`)
	if hostKey == "" {
		return nil, errors.ValidationError("hostKey is required")
	}

	if envelopeID == "" {
		env, err := r.store.ActiveEnvelope(ctx, hostKey)
		if err != nil {
			return nil, err
		}
		if env == nil {
			return nil, errors.NotFoundError("active envelope")
		}
		return env, nil
	}

	env, err := r.store.GetEnvelope(ctx, hostKey, envelopeID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		// Not recorded locally yet; the next status write creates it.
		return &models.Envelope{HostKey: hostKey, EnvelopeID: envelopeID}, nil
	}
	return env, nil
}

func (r *Reconciler) credentials(ctx context.Context, userKey string, session oauth2.SessionCache) (docusign.Credentials, error) {
	if userKey == "" {
		return docusign.Credentials{}, errors.AuthError("DocuSign not connected")
	}
	token, ok := r.tokens.GetValidAccessToken(ctx, userKey, session)
	if !ok {
		return docusign.Credentials{}, errors.AuthError("DocuSign not connected")
	}
	accountID, restBase, err := r.tokens.AccountContext(ctx, userKey)
	if err != nil {
		return docusign.Credentials{}, err
	}
	return docusign.Credentials{AccessToken: token, AccountID: accountID, RestBase: restBase}, nil
}

func (r *Reconciler) requireEdit(ctx context.Context, actor models.Actor, hostKey string) error {
	if actor.IsZero() {
		return errors.AuthError("authentication required")
	}
	ok, err := r.permissions.CanEdit(ctx, actor, hostKey)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ForbiddenError("not allowed to edit " + hostKey)
	}
	return nil
}

// tokenUser picks whose token reads the envelope: trusted internal callers
// act with the sender's token, users with their own.
func tokenUser(actor models.Actor, env *models.Envelope) string {
	if actor.SkipPermissions {
		if env != nil && env.Sender != "" {
			return env.Sender
		}
		return ""
	}
	return actor.Key
}

func newView(env *models.Envelope, status string, recipients []models.RecipientStatus) *View {
	signers := make([]models.Signer, 0, len(recipients))
	for _, rcpt := range recipients {
		signers = append(signers, models.Signer{
			Email:        rcpt.Email,
			Name:         rcpt.Name,
			Status:       rcpt.Status,
			RoutingOrder: rcpt.RoutingOrder,
		})
	}
	if recipients == nil {
		recipients = []models.RecipientStatus{}
	}

	attachments := env.SignedAttachments
	if attachments == nil {
		attachments = []string{}
	}
	view := &View{
		EnvelopeID:        env.EnvelopeID,
		EnvelopeStatus:    status,
		Signers:           recipients,
		SignerUIState:     models.DeriveUIStatus(status, signers),
		SignedAttached:    env.SignedAttached,
		SignedAttachments: attachments,
	}
	if status == models.StatusCompleted {
		view.SignedDownloadURL = DownloadURL(env.HostKey, env.EnvelopeID)
	}
	return view
}

// DownloadURL is the relative link to the combined signed document.
func DownloadURL(hostKey, envelopeID string) string {
	q := url.Values{}
	q.Set("envelopeId", envelopeID)
	if hostKey != "" {
		q.Set("hostKey", hostKey)
	}
	return DownloadPath + "?" + q.Encode()
}
