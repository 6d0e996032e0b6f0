// Package auth establishes who is calling. Callers present an HS256 JWT as
// a bearer token or in a cookie; each caller also gets a server-side
// session that holds the session tier of the access-token cache and the
// in-flight OAuth connect state.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/models"
)

const (
	// Issuer is set on tokens minted by GenerateJWT.
	Issuer = "esign-sync"
	// TokenCookie carries the identity token for browser flows.
	TokenCookie = "esign_token"
	// SessionCookie carries the session id.
	SessionCookie = "esign_session"

	tokenTTL        = 24 * time.Hour
	blacklistPrefix = "jwt:blacklist:"
)

// Claims identify the caller. The subject is the user key.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserKey string
	Email   string
	Name    string
	Admin   bool
}

// Actor returns the caller as a permission-checked actor.
func (i Identity) Actor() models.Actor {
	return models.UserActor(i.UserKey)
}

// RevocationStore records revoked tokens. The redis client satisfies it.
type RevocationStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type Auth struct {
	secret   []byte
	revoked  RevocationStore
	sessions *SessionStore
	logger   logging.Logger
}

// New creates the authenticator. revoked may be nil, in which case tokens
// cannot be revoked before they expire.
func New(jwtSecret string, revoked RevocationStore, sessions *SessionStore) (*Auth, error) {
	if len(jwtSecret) < 32 {
		return nil, errors.ConfigError("JWT secret must be at least 32 characters")
	}
	if sessions == nil {
		sessions = NewSessionStore(0)
	}
	return &Auth{
		secret:   []byte(jwtSecret),
		revoked:  revoked,
		sessions: sessions,
		logger:   logging.GetGlobalLogger().WithFields(logging.String("component", "auth")),
	}, nil
}

// Sessions returns the session store.
func (a *Auth) Sessions() *SessionStore {
	return a.sessions
}

// GenerateJWT mints a token for identity. Deployments normally receive
// tokens from their identity provider; this is used by tooling and tests.
func (a *Auth) GenerateJWT(identity Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: identity.Email,
		Name:  identity.Name,
		Admin: identity.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserKey,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.InternalError("sign token", err)
	}
	return signed, nil
}

// ValidateJWT parses and checks a token, including revocation.
func (a *Auth) ValidateJWT(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.AuthError("missing token")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.AuthError("invalid or expired token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.AuthError("token has no subject")
	}

	if a.revoked != nil {
		if v, err := a.revoked.Get(ctx, blacklistPrefix+tokenString); err == nil && v != "" {
			return nil, errors.AuthError("token has been revoked")
		}
	}
	return claims, nil
}

// Revoke blacklists a token until it would have expired anyway.
func (a *Auth) Revoke(ctx context.Context, tokenString string) error {
	claims, err := a.ValidateJWT(ctx, tokenString)
	if err != nil {
		return err
	}
	if a.revoked == nil {
		return errors.ConfigError("token revocation requires redis")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return a.revoked.Set(ctx, blacklistPrefix+tokenString, "1", ttl)
}

// RequireAuth authenticates the caller, attaches its Identity and Session to
// the request context and answers 401 otherwise.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ValidateJWT(r.Context(), TokenFromRequest(r))
		if err != nil {
			writeUnauthorized(w, err)
			return
		}

		identity := Identity{
			UserKey: claims.Subject,
			Email:   claims.Email,
			Name:    claims.Name,
			Admin:   claims.Admin,
		}

		var sessionID string
		if c, err := r.Cookie(SessionCookie); err == nil {
			sessionID = c.Value
		}
		session, created := a.sessions.GetOrCreate(sessionID, identity.UserKey)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    session.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
				Expires:  session.ExpiresAt(),
			})
		}

		ctx := WithIdentity(r.Context(), identity)
		ctx = WithSession(ctx, session)
		ctx = logging.ContextWithUserKey(ctx, identity.UserKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.Admin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"admin access required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest returns the bearer token, or the token cookie when no
// Authorization header is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	msg := "authentication required"
	if appErr, ok := errors.As(err); ok && appErr.Message != "missing token" {
		msg = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
