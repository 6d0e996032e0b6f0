// Package http builds the outbound HTTP clients used to talk to the OAuth
// provider and the signing service. Every client carries independent
// connect, socket-read and pool-wait timeouts so that no network call can
// run unbounded.
package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"esign-sync/internal/common/errors"
)

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	// ConnectTimeout bounds TCP dial plus TLS handshake.
	ConnectTimeout time.Duration
	// SocketTimeout bounds the wait for response headers. The whole
	// exchange is capped at ConnectTimeout+PoolWaitTimeout+2*SocketTimeout.
	SocketTimeout time.Duration
	// PoolWaitTimeout bounds the wait for a free request slot.
	PoolWaitTimeout time.Duration
	// MaxConcurrent is the number of request slots. Zero disables the limit.
	MaxConcurrent       int
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Transport           http.RoundTripper
	CheckRedirect       func(req *http.Request, via []*http.Request) error
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:      10 * time.Second,
		SocketTimeout:       30 * time.Second,
		PoolWaitTimeout:     5 * time.Second,
		MaxConcurrent:       20,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithConnectTimeout sets the dial and TLS handshake timeout
func WithConnectTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnectTimeout = timeout
	}
}

// WithSocketTimeout sets the response header timeout
func WithSocketTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.SocketTimeout = timeout
	}
}

// WithPoolWaitTimeout sets how long a request may wait for a free slot
func WithPoolWaitTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.PoolWaitTimeout = timeout
	}
}

// WithMaxConcurrent sets the number of concurrent request slots
func WithMaxConcurrent(n int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxConcurrent = n
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// WithCheckRedirect sets a custom redirect policy
func WithCheckRedirect(checkRedirect func(req *http.Request, via []*http.Request) error) ClientOption {
	return func(c *ClientConfig) {
		c.CheckRedirect = checkRedirect
	}
}

// NewHTTPClient creates a new HTTP client with the given options
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		dialer := &net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.SocketTimeout,
			MaxIdleConns:          cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			ForceAttemptHTTP2:     true,
		}
	}

	if cfg.MaxConcurrent > 0 {
		transport = &slotTransport{
			base:    transport,
			slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
			maxWait: cfg.PoolWaitTimeout,
		}
	}

	client := &http.Client{
		Timeout:   cfg.ConnectTimeout + cfg.PoolWaitTimeout + 2*cfg.SocketTimeout,
		Transport: transport,
	}
	if cfg.CheckRedirect != nil {
		client.CheckRedirect = cfg.CheckRedirect
	}
	return client
}

// NewHTTPClientWithTimeouts is shorthand for the three timeouts that are
// exposed through configuration.
func NewHTTPClientWithTimeouts(connect, socket, poolWait time.Duration) *http.Client {
	return NewHTTPClient(
		WithConnectTimeout(connect),
		WithSocketTimeout(socket),
		WithPoolWaitTimeout(poolWait),
	)
}

// slotTransport limits in-flight requests. A slot is held until the
// response body is closed.
type slotTransport struct {
	base    http.RoundTripper
	slots   *semaphore.Weighted
	maxWait time.Duration
}

func (t *slotTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	waitCtx := ctx
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	if err := t.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.TimeoutError("waiting for a free connection slot")
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.slots.Release(1)
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { t.slots.Release(1) }}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
