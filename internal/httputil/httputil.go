// Package httputil provides shared HTTP client construction utilities.
// It centralizes timeout defaults so every package that talks to an
// external service (model providers, tool adapters) uses consistent
// configuration.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Standard timeout defaults used across the module.
const (
	// DefaultProviderTimeout is the HTTP timeout for model provider calls.
	// Provider requests can involve large payloads and long inference
	// times, so they use a longer timeout.
	DefaultProviderTimeout = 60 * time.Second

	// DefaultToolTimeout is the HTTP timeout for tool adapter calls.
	// These are typically shorter-lived API requests.
	DefaultToolTimeout = 30 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewInstrumentedTransport wraps base with OpenTelemetry HTTP client
// instrumentation, so every outbound provider/tool call produces a client
// span under the active trace. Pass nil to wrap http.DefaultTransport.
func NewInstrumentedTransport(base http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(base)
}

// NewInstrumentedClient returns an *http.Client with the given timeout and
// an OTel-instrumented pooled-transport-free default transport. Callers
// that need connection pooling should wrap their own transport with
// NewInstrumentedTransport instead.
func NewInstrumentedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewInstrumentedTransport(nil),
	}
}
