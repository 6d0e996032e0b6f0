package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"esign-sync/internal/circuitbreaker"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
)

// DefaultExpiresIn applies when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600 * time.Second

// Scopes requested on connect.
var Scopes = []string{"signature", "offline_access"}

// ProviderConfig describes the OAuth client registered with the signing
// service.
type ProviderConfig struct {
	ClientID    string
	RedirectURI string
	// OAuthBase is the account server, e.g. https://account-d.docusign.com.
	OAuthBase string
	// Origin is sent on token calls; public PKCE clients are matched on it.
	Origin string
	// PreferredAccountID selects an account from userinfo when present.
	PreferredAccountID string
	// EnforceAccountID fails connect when the preferred account is absent.
	EnforceAccountID bool
}

// Account is the remote account chosen after a code exchange.
type Account struct {
	AccountID string `json:"accountId"`
	BaseURI   string `json:"baseUri"`
	IsDefault bool   `json:"isDefault"`
	Name      string `json:"name,omitempty"`
}

// RestBase returns the REST API root for the account.
func (a Account) RestBase() string {
	base := strings.TrimRight(strings.TrimSpace(a.BaseURI), "/")
	if base == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/restapi") {
		base += "/restapi"
	}
	return base
}

// Refresher performs a refresh-token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Provider talks to the OAuth endpoints of the signing service.
type Provider struct {
	config  ProviderConfig
	oauth   *oauth2.Config
	client  *http.Client
	breaker *circuitbreaker.GoBreakerAdapter
	logger  logging.Logger
}

// NewProvider creates a Provider. client supplies the timeouts; it is
// wrapped so that every call carries the configured Origin header.
func NewProvider(cfg ProviderConfig, client *http.Client, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(cfg.OAuthBase, "/")

	wrapped := *client
	wrapped.Transport = &originTransport{base: client.Transport, origin: cfg.Origin}

	return &Provider{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/auth",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client:  &wrapped,
		breaker: circuitbreaker.NewGoBreaker("oauth-provider", circuitbreaker.OAuthConfig, logger),
		logger:  logger,
	}
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// NewState returns a fresh CSRF state value.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalError("generate oauth state", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthCodeURL builds the authorization redirect with an S256 challenge.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code and its verifier for tokens.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	var tok *oauth2.Token
	err := p.breaker.Execute(ctx, func() error {
		var err error
		tok, err = p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
		return translateTokenError("exchange authorization code", err)
	})
	if err != nil {
		return nil, err
	}
	return withDefaultExpiry(tok), nil
}

// Refresh runs a refresh-token grant. The returned token keeps the old
// refresh token when the provider issues none.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.AuthError("no refresh token")
	}

	var tok *oauth2.Token
	err := p.breaker.Execute(ctx, func() error {
		var err error
		tok, err = p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		return translateTokenError("refresh token", err)
	})
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return withDefaultExpiry(tok), nil
}

type userInfoAccount struct {
	AccountID      string `json:"account_id"`
	AccountIDCamel string `json:"accountId"`
	IsDefault      any    `json:"is_default"`
	IsDefaultCamel any    `json:"isDefault"`
	BaseURI        string `json:"base_uri"`
	BaseURICamel   string `json:"baseUri"`
	AccountName    string `json:"account_name"`
}

type userInfoResponse struct {
	Accounts []userInfoAccount `json:"accounts"`
}

// UserInfo fetches the accounts visible to accessToken and picks one: the
// preferred account, else the default account, else the first.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*Account, error) {
	endpoint := strings.TrimRight(p.config.OAuthBase, "/") + "/oauth/userinfo"

	var info userInfoResponse
	err := p.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.InternalError("build userinfo request", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return errors.ConnectionError("userinfo request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return errors.ConnectionError("read userinfo response", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return errors.RemoteServiceError(resp.StatusCode, "", fmt.Sprintf("userinfo failed (HTTP %d)", resp.StatusCode))
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return errors.InternalError("decode userinfo response", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p.selectAccount(info.Accounts)
}

func (p *Provider) selectAccount(raw []userInfoAccount) (*Account, error) {
	accounts := make([]Account, 0, len(raw))
	for _, a := range raw {
		accounts = append(accounts, Account{
			AccountID: firstNonEmpty(a.AccountID, a.AccountIDCamel),
			BaseURI:   firstNonEmpty(a.BaseURI, a.BaseURICamel),
			IsDefault: truthy(a.IsDefault) || truthy(a.IsDefaultCamel),
			Name:      a.AccountName,
		})
	}
	if len(accounts) == 0 {
		return nil, errors.ValidationError("userinfo returned no accounts")
	}

	if want := strings.TrimSpace(p.config.PreferredAccountID); want != "" {
		for _, a := range accounts {
			if a.AccountID == want {
				return &a, nil
			}
		}
		if p.config.EnforceAccountID {
			return nil, errors.ValidationErrorf("configured account %s is not available to this user", want)
		}
		p.logger.Warn("Preferred account not found in userinfo, falling back",
			logging.String("account_id", want))
	}

	for _, a := range accounts {
		if a.IsDefault {
			return &a, nil
		}
	}
	return &accounts[0], nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func withDefaultExpiry(tok *oauth2.Token) *oauth2.Token {
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(DefaultExpiresIn)
	}
	return tok
}

// translateTokenError maps x/oauth2 failures onto the error taxonomy. A
// rejected grant keeps the provider's error code so callers can show it.
func translateTokenError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = op + " rejected"
		}
		return errors.RemoteServiceError(status, re.ErrorCode, msg)
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.ConnectionError(op+" failed", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	}
	return false
}

type originTransport struct {
	base   http.RoundTripper
	origin string
}

func (t *originTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.origin == "" {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Origin", t.origin)
	return base.RoundTrip(clone)
}
