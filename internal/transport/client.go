// Package transport is the HTTP plumbing shared by source fetchers: user
// agent, authentication, bounded response bodies and status mapping to the
// pkg/errors taxonomy.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/agentstation/taxamap/pkg/constants"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// DefaultUserAgent identifies taxamap to source APIs.
const DefaultUserAgent = "taxamap/1.0 (+https://github.com/agentstation/taxamap)"

// Client provides HTTP client functionality for one source.
type Client struct {
	http      *http.Client
	auth      Authenticator
	apiKey    string
	source    string
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAuth applies auth with apiKey to every request. An empty key disables it.
func WithAuth(auth Authenticator, apiKey string) Option {
	return func(c *Client) {
		if auth != nil {
			c.auth = auth
		}
		c.apiKey = apiKey
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a transport client for the named source.
func New(source string, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultHTTPTimeout},
		auth:      NoAuth{},
		source:    source,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the source name errors are attributed to.
func (c *Client) Source() string {
	return c.source
}

// DoWithContext performs an HTTP request with headers and authentication applied.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.apiKey != "" {
		c.auth.Apply(req, c.apiKey)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	logger := logging.FromContext(ctx)
	target := c.auth.Redact(req.URL)
	if err != nil {
		logger.Debug().
			Str("source", c.source).
			Str("url", target).
			Err(err).
			Msg("request failed")
		return nil, err
	}
	logger.Debug().
		Str("source", c.source).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request completed")
	return resp, nil
}

// Get performs a GET request with the given Accept header.
func (c *Client) Get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewValidationError("url", url, err.Error())
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return c.DoWithContext(ctx, req)
}
