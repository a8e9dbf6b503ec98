// Package transport provides the HTTP client used by network-backed providers:
// authentication, common headers, and status-code classification.
package transport

import (
	"context"
	"net/http"
	"os"

	"github.com/agentstation/corroborate/pkg/constants"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/sources"
)

// UserAgent is sent with every request.
const UserAgent = "corroborate/1"

// Client provides HTTP client functionality with authentication.
type Client struct {
	source string
	http   *http.Client
	auth   Authenticator
	keyEnv string
}

// New creates a client for source with the given authenticator. The key is
// read from keyEnv on every request so rotated credentials take effect.
func New(source string, auth Authenticator, keyEnv string) *Client {
	if auth == nil {
		auth = &NoAuth{}
	}
	return &Client{
		source: source,
		http:   &http.Client{Timeout: constants.DefaultHTTPTimeout},
		auth:   auth,
		keyEnv: keyEnv,
	}
}

// NewForProvider creates a client configured from a provider config.
func NewForProvider(cfg sources.ProviderConfig) *Client {
	return New(cfg.ID, AuthenticatorFor(cfg.Auth), cfg.Auth.KeyEnv)
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

// Do performs an HTTP request with authentication and common headers applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.keyEnv != "" {
		key := os.Getenv(c.keyEnv)
		if key == "" {
			return nil, &errors.AuthenticationError{
				Provider: c.source,
				Method:   "api_key",
				Message:  "environment variable " + c.keyEnv + " is not set",
				Err:      errors.ErrAPIKeyRequired,
			}
		}
		c.auth.Apply(req, key)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewProviderFatalError(c.source, err)
	}
	return c.Do(req)
}

// GetJSON performs a GET and decodes a 200 response into target.
func (c *Client) GetJSON(ctx context.Context, url string, target any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	return DecodeResponse(c.source, resp, target)
}
