package credentials

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth2Credential implements OAuth2 bearer authentication from a token
// source. The tool adapters (ticket/doc systems, calendar APIs) use it for
// client-credentials flows; token caching and refresh are handled by the
// underlying oauth2 token source.
type OAuth2Credential struct {
	tokenSource oauth2.TokenSource
}

// NewOAuth2Credential wraps an existing token source.
func NewOAuth2Credential(ts oauth2.TokenSource) *OAuth2Credential {
	return &OAuth2Credential{tokenSource: oauth2.ReuseTokenSource(nil, ts)}
}

// NewClientCredentials creates an OAuth2 credential for the two-legged
// client-credentials grant against tokenURL.
func NewClientCredentials(ctx context.Context, clientID, clientSecret, tokenURL string, scopes []string) *OAuth2Credential {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return &OAuth2Credential{tokenSource: cfg.TokenSource(ctx)}
}

// Apply adds the OAuth2 bearer token to the request.
func (c *OAuth2Credential) Apply(_ context.Context, req *http.Request) error {
	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("failed to get OAuth2 token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// Type returns "oauth2".
func (c *OAuth2Credential) Type() string {
	return "oauth2"
}
