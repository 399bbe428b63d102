// Package credentials provides request authentication for the module's
// outbound HTTP surfaces: model-provider backends (Azure OpenAI, AWS
// Bedrock) and tool adapters (ticket/doc systems, calendar APIs). Each
// scheme is a Credential that signs or decorates a request in place;
// providers and adapters hold a Credential and never see raw secrets
// beyond construction time.
package credentials

import (
	"context"
	"net/http"
)

// Credential applies authentication to an outbound HTTP request. It may
// modify headers, query parameters, or the request body.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential scheme identifier (e.g. "api_key",
	// "aws", "azure", "oauth2").
	Type() string
}

// APIKeyCredential implements header-based API key authentication with a
// configurable header name and prefix.
type APIKeyCredential struct {
	apiKey     string
	headerName string
	prefix     string
}

// APIKeyOption configures an APIKeyCredential.
type APIKeyOption func(*APIKeyCredential)

// WithHeaderName sets the header the key is sent in (default
// "Authorization").
func WithHeaderName(name string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.headerName = name
	}
}

// WithBearerPrefix prepends "Bearer " to the key value.
func WithBearerPrefix() APIKeyOption {
	return func(c *APIKeyCredential) {
		c.prefix = "Bearer "
	}
}

// WithPrefix sets a custom prefix for the key value.
func WithPrefix(prefix string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.prefix = prefix
	}
}

// NewAPIKeyCredential creates an API key credential. By default it sends
// the key as "Authorization: Bearer <key>".
func NewAPIKeyCredential(apiKey string, opts ...APIKeyOption) *APIKeyCredential {
	c := &APIKeyCredential{
		apiKey:     apiKey,
		headerName: "Authorization",
		prefix:     "Bearer ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply adds the API key to the request header. Empty keys are skipped so
// unauthenticated local endpoints keep working.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set(c.headerName, c.prefix+c.apiKey)
	}
	return nil
}

// Type returns "api_key".
func (c *APIKeyCredential) Type() string {
	return "api_key"
}

// APIKey returns the raw key value, for schemes that need it outside an
// HTTP header (e.g. Azure's "api-key" query auth variants).
func (c *APIKeyCredential) APIKey() string {
	return c.apiKey
}

// NoOpCredential applies no authentication. Used for providers that do
// not require it or handle it internally.
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// Type returns "none".
func (c *NoOpCredential) Type() string {
	return "none"
}
