package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jmespath/go-jmespath"

	"github.com/relaychat/conductor/credentials"
	"github.com/relaychat/conductor/internal/httputil"
)

// TicketDocFieldPaths selects fields out of an upstream ticket/doc
// system's response using JMESPath expressions. Upstream automation
// endpoints differ wildly in response shape; expressing the mapping as
// data instead of per-system structs keeps the adapter closed over one
// backend type.
type TicketDocFieldPaths struct {
	// Items locates the result list within the response document.
	Items string
	// Title/URL/Type/Summary are evaluated relative to each item.
	Title   string
	URL     string
	Type    string
	Summary string
	// Status and ExecutionMethod are evaluated against the whole document.
	Status          string
	ExecutionMethod string
}

// DefaultTicketDocFieldPaths matches the flat {status, data: [{title, url,
// type, summary}], execution_method} shape.
func DefaultTicketDocFieldPaths() TicketDocFieldPaths {
	return TicketDocFieldPaths{
		Items:           "data",
		Title:           "title",
		URL:             "url",
		Type:            "type",
		Summary:         "summary",
		Status:          "status",
		ExecutionMethod: "execution_method",
	}
}

// NormalizeTicketDocResponse evaluates the configured JMESPath expressions
// over a decoded JSON document and produces the uniform payload shape.
// Items that yield no title and no URL are dropped; unknown type strings
// default to confluence.
func NormalizeTicketDocResponse(doc any, paths TicketDocFieldPaths) (TicketsAndDocsPayload, error) {
	payload := TicketsAndDocsPayload{}

	payload.Status = searchString(doc, paths.Status)
	payload.ExecutionMethod = searchString(doc, paths.ExecutionMethod)

	rawItems, err := jmespath.Search(paths.Items, doc)
	if err != nil {
		return payload, fmt.Errorf("items path %q: %w", paths.Items, err)
	}
	items, ok := rawItems.([]any)
	if !ok {
		return payload, nil
	}

	for _, item := range items {
		entry := TicketDocItem{
			Title:   searchString(item, paths.Title),
			URL:     searchString(item, paths.URL),
			Summary: searchString(item, paths.Summary),
		}
		switch searchString(item, paths.Type) {
		case string(DocTypeJira):
			entry.Type = DocTypeJira
		default:
			entry.Type = DocTypeConfluence
		}
		if entry.Title == "" && entry.URL == "" {
			continue
		}
		payload.Data = append(payload.Data, entry)
	}

	return payload, nil
}

func searchString(doc any, expr string) string {
	if expr == "" {
		return ""
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// HTTPTicketsAndDocsBackend runs natural-language tasks against an
// upstream ticket+wiki automation endpoint over HTTP and normalizes the
// response through JMESPath field paths. Authentication is delegated to a
// credentials.Credential (API key, OAuth2 client credentials, ...), per
// the adapter's own responsibility for auth and pooling.
type HTTPTicketsAndDocsBackend struct {
	endpoint string
	cred     credentials.Credential
	paths    TicketDocFieldPaths
	client   *http.Client
}

// NewHTTPTicketsAndDocsBackend builds the backend. cred may be nil for
// unauthenticated endpoints; paths falls back to the default mapping when
// zero.
func NewHTTPTicketsAndDocsBackend(endpoint string, cred credentials.Credential, paths TicketDocFieldPaths) *HTTPTicketsAndDocsBackend {
	if cred == nil {
		cred = &credentials.NoOpCredential{}
	}
	if paths == (TicketDocFieldPaths{}) {
		paths = DefaultTicketDocFieldPaths()
	}
	return &HTTPTicketsAndDocsBackend{
		endpoint: endpoint,
		cred:     cred,
		paths:    paths,
		client: &http.Client{
			Timeout:   httputil.DefaultToolTimeout,
			Transport: httputil.NewInstrumentedTransport(nil),
		},
	}
}

// Run implements TicketsAndDocsBackend.
func (b *HTTPTicketsAndDocsBackend) Run(ctx context.Context, task string) (TicketsAndDocsPayload, error) {
	doc, err := b.postJSON(ctx, map[string]string{"task": task})
	if err != nil {
		return TicketsAndDocsPayload{}, err
	}
	return NormalizeTicketDocResponse(doc, b.paths)
}

func (b *HTTPTicketsAndDocsBackend) postJSON(ctx context.Context, body any) (any, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := b.cred.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: upstream returned %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: upstream returned %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(respBytes))
	}

	var doc any
	if err := json.Unmarshal(respBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return doc, nil
}

// HTTPWebSearchBackend runs queries against an external web-search API
// (a Perplexity-style answer endpoint or an equivalent gateway) over
// HTTP. The request body is the WebSearchInput wire shape; the response
// must decode to the {content, citations, usage} payload shape.
// Authentication is delegated to a credentials.Credential.
type HTTPWebSearchBackend struct {
	endpoint string
	cred     credentials.Credential
	client   *http.Client
}

// NewHTTPWebSearchBackend builds the backend. cred may be nil for
// unauthenticated endpoints.
func NewHTTPWebSearchBackend(endpoint string, cred credentials.Credential) *HTTPWebSearchBackend {
	if cred == nil {
		cred = &credentials.NoOpCredential{}
	}
	return &HTTPWebSearchBackend{
		endpoint: endpoint,
		cred:     cred,
		client: &http.Client{
			Timeout:   httputil.DefaultToolTimeout,
			Transport: httputil.NewInstrumentedTransport(nil),
		},
	}
}

// Search implements WebSearchBackend.
func (b *HTTPWebSearchBackend) Search(ctx context.Context, in WebSearchInput) (WebSearchPayload, error) {
	reqBytes, err := json.Marshal(in)
	if err != nil {
		return WebSearchPayload{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return WebSearchPayload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := b.cred.Apply(ctx, req); err != nil {
		return WebSearchPayload{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return WebSearchPayload{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return WebSearchPayload{}, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return WebSearchPayload{}, fmt.Errorf("%w: upstream returned %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return WebSearchPayload{}, fmt.Errorf("%w: upstream returned %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return WebSearchPayload{}, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(respBytes))
	}

	var payload WebSearchPayload
	if err := json.Unmarshal(respBytes, &payload); err != nil {
		return WebSearchPayload{}, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// HTTPCalendarBackend performs calendar operations against an upstream
// calendar API over HTTP. The action becomes part of the path; arguments
// post as JSON; the decoded response body is the action-shaped result.
type HTTPCalendarBackend struct {
	endpoint string
	cred     credentials.Credential
	client   *http.Client
}

// NewHTTPCalendarBackend builds the backend. cred may be nil for
// unauthenticated endpoints.
func NewHTTPCalendarBackend(endpoint string, cred credentials.Credential) *HTTPCalendarBackend {
	if cred == nil {
		cred = &credentials.NoOpCredential{}
	}
	return &HTTPCalendarBackend{
		endpoint: endpoint,
		cred:     cred,
		client: &http.Client{
			Timeout:   httputil.DefaultToolTimeout,
			Transport: httputil.NewInstrumentedTransport(nil),
		},
	}
}

// Do implements CalendarBackend.
func (b *HTTPCalendarBackend) Do(ctx context.Context, action CalendarAction, args map[string]any) (any, error) {
	reqBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/"+string(action), bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := b.cred.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: upstream returned %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(respBytes))
	}

	var result any
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}
