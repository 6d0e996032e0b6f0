package oauth2

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/crypto"
	"esign-sync/internal/locks"
	"esign-sync/internal/models"
)

// RecordStore persists TokenRecords. GetTokenRecord returns (nil, nil) when
// the user has none.
type RecordStore interface {
	GetTokenRecord(ctx context.Context, userKey string) (*models.TokenRecord, error)
	SaveTokenRecord(ctx context.Context, record *models.TokenRecord) error
	DeleteTokenRecord(ctx context.Context, userKey string) error
}

// Status is the non-secret connection summary shown to a user.
type Status struct {
	Connected   bool   `json:"connected"`
	AccountID   string `json:"accountId,omitempty"`
	RestBase    string `json:"restBase,omitempty"`
	ExpiresAtMs int64  `json:"expiresAtMs,omitempty"`
}

const (
	refreshLockPrefix  = "token-refresh:"
	refreshLockTTL     = 30 * time.Second
	refreshLockTimeout = 30 * time.Second
)

// Manager resolves valid access tokens per user.
type Manager struct {
	store     RecordStore
	codec     *crypto.Codec
	refresher Refresher
	cache     TokenCache
	locks     locks.LockManagerInterface
	logger    logging.Logger
	now       func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTokenCache sets the process cache tier. The default is in-memory.
func WithTokenCache(cache TokenCache) ManagerOption {
	return func(m *Manager) {
		if cache != nil {
			m.cache = cache
		}
	}
}

// WithLockManager sets the lock manager that serializes refreshes.
func WithLockManager(lm locks.LockManagerInterface) ManagerOption {
	return func(m *Manager) {
		if lm != nil {
			m.locks = lm
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a token manager.
//
// Parameters:
//   - store: persisted TokenRecords
//   - codec: seals tokens before they are persisted
//   - refresher: performs the refresh-token grant, normally a *Provider
func NewManager(store RecordStore, codec *crypto.Codec, refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		codec:     codec,
		refresher: refresher,
		cache:     NewMemoryTokenCache(),
		locks:     locks.NewLocalManager(),
		logger:    logging.GetGlobalLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidAccessToken returns a live access token for userKey, refreshing it
// when needed. session may be nil. The boolean is false whenever no usable
// token could be produced.
func (m *Manager) GetValidAccessToken(ctx context.Context, userKey string, session SessionCache) (string, bool) {
	if userKey == "" {
		return "", false
	}

	if session != nil {
		if token, ok := session.CachedAccessToken(); ok && token != "" {
			return token, true
		}
	}

	if token, ok := m.cache.Get(ctx, userKey); ok {
		if session != nil {
			session.SetCachedAccessToken(token, m.now().Add(time.Minute))
		}
		return token, true
	}

	record, err := m.store.GetTokenRecord(ctx, userKey)
	if err != nil {
		m.logger.Warn("Failed to load token record", logging.String("user", userKey), logging.Err(err))
		return "", false
	}
	if record == nil {
		return "", false
	}
	if token, ok := m.liveAccessToken(record); ok {
		m.publish(ctx, userKey, token, record.ExpiresAtMs, session)
		return token, true
	}

	return m.refreshLocked(ctx, userKey, session)
}

// refreshLocked holds the per-user lock only around re-check, refresh and
// write.
func (m *Manager) refreshLocked(ctx context.Context, userKey string, session SessionCache) (string, bool) {
	lockCtx, cancel := context.WithTimeout(ctx, refreshLockTimeout)
	defer cancel()

	lock, err := m.locks.AcquireLock(lockCtx, refreshLockPrefix+userKey, refreshLockTTL)
	if err != nil {
		m.logger.Warn("Could not acquire token refresh lock", logging.String("user", userKey), logging.Err(err))
		return "", false
	}
	defer lock.Release(context.Background())

	record, err := m.store.GetTokenRecord(ctx, userKey)
	if err != nil || record == nil {
		return "", false
	}
	if token, ok := m.liveAccessToken(record); ok {
		m.publish(ctx, userKey, token, record.ExpiresAtMs, session)
		return token, true
	}

	refreshToken, err := m.open(record.RefreshToken)
	if err != nil || refreshToken == "" {
		m.logger.Info("No usable refresh token", logging.String("user", userKey))
		return "", false
	}

	tok, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Warn("Token refresh failed", logging.String("user", userKey), logging.Err(err))
		return "", false
	}

	next, err := m.newRecord(userKey, tok, record.AccountID, record.RestBase)
	if err != nil {
		m.logger.Error("Failed to seal refreshed token", err, logging.String("user", userKey))
		return "", false
	}
	if err := m.store.SaveTokenRecord(ctx, next); err != nil {
		m.logger.Error("Failed to persist refreshed token", err, logging.String("user", userKey))
		return "", false
	}

	m.logger.Info("Refreshed access token", logging.String("user", userKey))
	m.publish(ctx, userKey, tok.AccessToken, next.ExpiresAtMs, session)
	return tok.AccessToken, true
}

// SaveExchange stores the tokens of a completed authorization-code exchange
// as a new TokenRecord and primes the caches.
func (m *Manager) SaveExchange(ctx context.Context, userKey string, tok *oauth2.Token, account *Account, session SessionCache) error {
	var accountID, restBase string
	if account != nil {
		accountID, restBase = account.AccountID, account.RestBase()
	}

	record, err := m.newRecord(userKey, tok, accountID, restBase)
	if err != nil {
		return err
	}
	if err := m.store.SaveTokenRecord(ctx, record); err != nil {
		return errors.PersistenceError("save token record", err)
	}
	m.publish(ctx, userKey, tok.AccessToken, record.ExpiresAtMs, session)
	return nil
}

// AccountContext returns the non-secret account details recorded for the
// user.
func (m *Manager) AccountContext(ctx context.Context, userKey string) (accountID, restBase string, err error) {
	record, err := m.store.GetTokenRecord(ctx, userKey)
	if err != nil {
		return "", "", err
	}
	if record == nil {
		return "", "", errors.AuthError("DocuSign not connected")
	}
	return record.AccountID, record.RestBase, nil
}

// Status reports whether the user has a usable token.
func (m *Manager) Status(ctx context.Context, userKey string, session SessionCache) Status {
	if _, ok := m.GetValidAccessToken(ctx, userKey, session); !ok {
		return Status{}
	}
	status := Status{Connected: true}
	if record, err := m.store.GetTokenRecord(ctx, userKey); err == nil && record != nil {
		status.AccountID = record.AccountID
		status.RestBase = record.RestBase
		status.ExpiresAtMs = record.ExpiresAtMs
	}
	return status
}

// Disconnect forgets the user's tokens in every tier.
func (m *Manager) Disconnect(ctx context.Context, userKey string, session SessionCache) error {
	if session != nil {
		session.ClearCachedAccessToken()
	}
	m.cache.Delete(ctx, userKey)
	if err := m.store.DeleteTokenRecord(ctx, userKey); err != nil {
		return errors.PersistenceError("delete token record", err)
	}
	return nil
}

func (m *Manager) liveAccessToken(record *models.TokenRecord) (string, bool) {
	if record.AccessToken == "" || m.now().UnixMilli() >= record.ExpiresAtMs {
		return "", false
	}
	token, err := m.open(record.AccessToken)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// open decrypts a stored secret. Values written before encryption was
// introduced are accepted as plaintext.
func (m *Manager) open(value string) (string, error) {
	if !crypto.IsEncoded(value) {
		return value, nil
	}
	return m.codec.Decrypt(value)
}

func (m *Manager) newRecord(userKey string, tok *oauth2.Token, accountID, restBase string) (*models.TokenRecord, error) {
	access, err := m.codec.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh := ""
	if tok.RefreshToken != "" {
		if refresh, err = m.codec.Encrypt(tok.RefreshToken); err != nil {
			return nil, err
		}
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = m.now().Add(DefaultExpiresIn)
	}

	return &models.TokenRecord{
		UserKey:      userKey,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAtMs:  expiry.UnixMilli(),
		AccountID:    accountID,
		RestBase:     restBase,
	}, nil
}

func (m *Manager) publish(ctx context.Context, userKey, token string, expiresAtMs int64, session SessionCache) {
	expiresAt := time.UnixMilli(expiresAtMs)
	m.cache.Set(ctx, userKey, token, expiresAt)
	if session != nil {
		session.SetCachedAccessToken(token, expiresAt)
	}
}
