package auth

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL bounds an idle session.
const DefaultSessionTTL = 24 * time.Hour

// Session is a caller's server-side state. It implements the session tier
// of the access-token cache and holds the PKCE connect state between the
// connect redirect and the callback.
type Session struct {
	ID      string
	UserKey string

	mu           sync.Mutex
	expiresAt    time.Time
	accessToken  string
	tokenExpires time.Time
	connect      *pendingConnect
	now          func() time.Time
}

type pendingConnect struct {
	verifier string
	state    string
	returnTo string
}

// ExpiresAt returns when the session lapses.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// CachedAccessToken returns the session's access token while it is live.
func (s *Session) CachedAccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken == "" || !s.now().Before(s.tokenExpires) {
		return "", false
	}
	return s.accessToken, true
}

func (s *Session) SetCachedAccessToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	s.tokenExpires = expiresAt
}

func (s *Session) ClearCachedAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.tokenExpires = time.Time{}
}

// BeginConnect stores the PKCE verifier, CSRF state and post-connect
// destination, replacing any earlier attempt.
func (s *Session) BeginConnect(verifier, state, returnTo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connect = &pendingConnect{verifier: verifier, state: state, returnTo: returnTo}
}

// FinishConnect consumes the pending connect. It reports ok only when a
// connect is pending and state matches; the pending values are removed in
// every case.
func (s *Session) FinishConnect(state string) (verifier, returnTo string, ok bool) {
	s.mu.Lock()
	pending := s.connect
	s.connect = nil
	s.mu.Unlock()

	if pending == nil || state == "" {
		return "", "", false
	}
	if subtle.ConstantTimeCompare([]byte(pending.state), []byte(state)) != 1 {
		return "", "", false
	}
	return pending.verifier, pending.returnTo, true
}

func (s *Session) touch(ttl time.Duration) {
	s.mu.Lock()
	s.expiresAt = s.now().Add(ttl)
	s.mu.Unlock()
}

func (s *Session) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.expiresAt)
}

// SessionStore keeps sessions in memory. Sessions are bound to one user; a
// session id presented by another user is ignored.
type SessionStore struct {
	ttl      time.Duration
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates a store. ttl <= 0 selects DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns the live session id belongs to when it is bound to
// userKey, or a new one. created reports whether a new session was made.
func (st *SessionStore) GetOrCreate(id, userKey string) (session *Session, created bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok && id != "" {
		if s.UserKey == userKey && !s.expired() {
			s.touch(st.ttl)
			return s, false
		}
		if s.expired() {
			delete(st.sessions, id)
		}
	}

	s := &Session{ID: uuid.NewString(), UserKey: userKey, now: st.now}
	s.touch(st.ttl)
	st.sessions[s.ID] = s
	return s, true
}

// Get returns a live session.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired() {
		delete(st.sessions, id)
		return nil, false
	}
	return s, true
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// CleanupExpired drops lapsed sessions and returns how many were removed.
func (st *SessionStore) CleanupExpired() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if s.expired() {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

type contextKey int

const (
	identityKey contextKey = iota
	sessionKey
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the request's session or nil.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey).(*Session)
	return session
}
