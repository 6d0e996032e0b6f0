// Package docusign is a thin REST client for the remote signing service.
// Every call is rate limited per account, guarded by a circuit breaker and
// bounded by the timeouts of the supplied http.Client.
package docusign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"esign-sync/internal/circuitbreaker"
	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/ratelimit"
)

// CombinedDocumentID selects the single merged PDF of all signed documents.
const CombinedDocumentID = "combined"

// maxErrorBody caps how much of a failed response is read for parsing.
const maxErrorBody = 64 << 10

// Credentials identify the caller and the remote account a call runs against.
type Credentials struct {
	AccessToken string
	AccountID   string
	RestBase    string
}

type Config struct {
	// DefaultRestBase is used when Credentials carry no RestBase.
	DefaultRestBase string
	// RatePerSecond limits calls per account. Zero disables limiting.
	RatePerSecond float64
}

type Client struct {
	http            *http.Client
	limiter         *ratelimit.Limiter
	breaker         *circuitbreaker.GoBreakerAdapter
	defaultRestBase string
	logger          logging.Logger
}

func NewClient(httpClient *http.Client, cfg Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:            httpClient,
		limiter:         ratelimit.NewLimiter(ratelimit.Config{PerSecond: cfg.RatePerSecond}),
		breaker:         circuitbreaker.NewGoBreaker("docusign-rest", circuitbreaker.RemoteAPIConfig, logger),
		defaultRestBase: strings.TrimRight(cfg.DefaultRestBase, "/"),
		logger:          logger.WithFields(logging.String("component", "docusign_client")),
	}
}

// Breaker exposes the breaker for diagnostics.
func (c *Client) Breaker() *circuitbreaker.GoBreakerAdapter {
	return c.breaker
}

// CreateResult is the provider's answer to an envelope POST.
type CreateResult struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
	URI        string `json:"uri,omitempty"`
	// Raw is the undecoded response body, kept for audit.
	Raw []byte `json:"-"`
}

// EnvelopeSummary is the subset of envelope fields the service reads.
type EnvelopeSummary struct {
	EnvelopeID   string `json:"envelopeId"`
	Status       string `json:"status"`
	EmailSubject string `json:"emailSubject"`
}

// DocumentInfo describes one entry of an envelope's document list.
type DocumentInfo struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
}

// CreateEnvelope posts an envelope definition and returns the new id.
func (c *Client) CreateEnvelope(ctx context.Context, cred Credentials, request interface{}) (*CreateResult, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.InternalError("encode envelope request", err)
	}

	raw, err := c.do(ctx, cred, http.MethodPost, "/envelopes", "application/json", body)
	if err != nil {
		return nil, err
	}

	var result CreateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.InternalError("decode envelope response", err)
	}
	if result.EnvelopeID == "" {
		return nil, errors.RemoteServiceError(http.StatusOK, "", "envelope response carried no envelopeId")
	}
	result.Raw = raw
	return &result, nil
}

// GetEnvelope reads the current envelope status.
func (c *Client) GetEnvelope(ctx context.Context, cred Credentials, envelopeID string) (*EnvelopeSummary, error) {
	raw, err := c.do(ctx, cred, http.MethodGet, "/envelopes/"+url.PathEscape(envelopeID), "application/json", nil)
	if err != nil {
		return nil, err
	}
	var summary EnvelopeSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, errors.InternalError("decode envelope", err)
	}
	if summary.EnvelopeID == "" {
		summary.EnvelopeID = envelopeID
	}
	return &summary, nil
}

// ListDocuments returns the envelope's document list in provider order.
func (c *Client) ListDocuments(ctx context.Context, cred Credentials, envelopeID string) ([]DocumentInfo, error) {
	raw, err := c.do(ctx, cred, http.MethodGet, "/envelopes/"+url.PathEscape(envelopeID)+"/documents", "application/json", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		EnvelopeDocuments []DocumentInfo `json:"envelopeDocuments"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.InternalError("decode document list", err)
	}
	return payload.EnvelopeDocuments, nil
}

// GetDocument downloads one document, or the combined file when documentID
// is CombinedDocumentID.
func (c *Client) GetDocument(ctx context.Context, cred Credentials, envelopeID, documentID string) ([]byte, error) {
	if documentID == "" {
		documentID = CombinedDocumentID
	}
	path := "/envelopes/" + url.PathEscape(envelopeID) + "/documents/" + url.PathEscape(documentID)
	return c.do(ctx, cred, http.MethodGet, path, "application/pdf", nil)
}

func (c *Client) accountURL(cred Credentials) (string, error) {
	if cred.AccessToken == "" {
		return "", errors.AuthError("DocuSign not connected")
	}
	if cred.AccountID == "" {
		return "", errors.ValidationError("no DocuSign account id on the token record, please reconnect")
	}
	base := strings.TrimRight(cred.RestBase, "/")
	if base == "" {
		base = c.defaultRestBase
	}
	if base == "" {
		return "", errors.ConfigError("no DocuSign REST base configured")
	}
	return base + "/v2.1/accounts/" + url.PathEscape(cred.AccountID), nil
}

func (c *Client) do(ctx context.Context, cred Credentials, method, path, accept string, body []byte) ([]byte, error) {
	base, err := c.accountURL(cred)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, cred.AccountID); err != nil {
		return nil, err
	}

	var out []byte
	err = c.breaker.Execute(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
		if err != nil {
			return errors.InternalError("build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		req.Header.Set("Accept", accept)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return errors.TimeoutError(fmt.Sprintf("%s %s", method, path))
			}
			return errors.ConnectionError(fmt.Sprintf("%s %s", method, path), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return parseError(resp)
		}

		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.ConnectionError("read response body", err)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("Remote call failed",
			logging.String("method", method),
			logging.String("path", path),
			logging.Err(err),
		)
		return nil, err
	}
	return out, nil
}

// parseError turns a non-2xx answer into a RemoteServiceError, keeping the
// provider's errorCode and message when the body is the usual JSON shape.
func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		ErrorCode string `json:"errorCode"`
		Message   string `json:"message"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &payload) == nil {
		return errors.RemoteServiceError(resp.StatusCode, payload.ErrorCode, payload.Message)
	}
	return errors.RemoteServiceError(resp.StatusCode, "", "")
}
