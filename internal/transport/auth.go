package transport

import (
	"net/http"
	"strings"

	"github.com/agentstation/corroborate/pkg/sources"
)

// Authenticator applies authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request, apiKey string)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request, _ string) {}

// BearerAuth implements Bearer token authentication.
type BearerAuth struct{}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

// HeaderAuth sends the key in a named header, optionally behind a scheme prefix.
type HeaderAuth struct {
	Header string
	Prefix string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set(a.Header, a.Prefix+apiKey)
}

// QueryAuth implements API key as query parameter authentication.
type QueryAuth struct {
	Param string
}

// Apply implements the Authenticator interface for QueryAuth.
func (a *QueryAuth) Apply(req *http.Request, apiKey string) {
	if req.URL == nil {
		return
	}
	query := req.URL.Query()
	query.Set(a.Param, apiKey)
	req.URL.RawQuery = query.Encode()
}

// AuthenticatorFor picks an authenticator from a provider's auth config.
// A config without a key variable authenticates nothing.
func AuthenticatorFor(cfg sources.AuthConfig) Authenticator {
	if cfg.KeyEnv == "" {
		return &NoAuth{}
	}
	if cfg.QueryParam != "" {
		return &QueryAuth{Param: cfg.QueryParam}
	}

	header := cfg.Header
	if header == "" {
		header = "Authorization"
	}
	var prefix string
	switch strings.ToLower(cfg.Scheme) {
	case "", "bearer":
		prefix = "Bearer "
	case "basic":
		prefix = "Basic "
	default:
		// direct and unknown schemes send the raw key
	}
	if header == "Authorization" && prefix == "Bearer " {
		return &BearerAuth{}
	}
	return &HeaderAuth{Header: header, Prefix: prefix}
}
