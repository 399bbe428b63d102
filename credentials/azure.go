package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// tokenRefreshBuffer is the time before token expiration to trigger a refresh.
const tokenRefreshBuffer = 5 * time.Minute

// cognitiveServicesScope is the AAD scope for Azure AI endpoints.
const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// AzureCredential implements Azure AD token authentication for Azure AI
// endpoints (Azure OpenAI deployments included). Tokens are cached and
// refreshed shortly before expiry.
type AzureCredential struct {
	endpoint    string
	cred        azcore.TokenCredential
	mu          sync.RWMutex
	cachedToken *azcore.AccessToken
}

// NewAzureCredential creates an Azure credential using the default chain
// (Managed Identity, Azure CLI, environment variables).
func NewAzureCredential(_ context.Context, endpoint string) (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	return &AzureCredential{
		endpoint: endpoint,
		cred:     cred,
	}, nil
}

// NewAzureCredentialWithClientSecret creates an Azure credential from a
// tenant/client/secret triple.
func NewAzureCredentialWithClientSecret(
	_ context.Context, endpoint, tenantID, clientID, clientSecret string,
) (*AzureCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	return &AzureCredential{
		endpoint: endpoint,
		cred:     cred,
	}, nil
}

// NewAzureCredentialWithManagedIdentity creates an Azure credential bound
// to a managed identity. clientID selects a user-assigned identity; nil or
// empty uses the system-assigned one.
func NewAzureCredentialWithManagedIdentity(
	_ context.Context, endpoint string, clientID *string,
) (*AzureCredential, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if clientID != nil && *clientID != "" {
		opts.ID = azidentity.ClientID(*clientID)
	}

	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure managed identity credential: %w", err)
	}

	return &AzureCredential{
		endpoint: endpoint,
		cred:     cred,
	}, nil
}

// NewAzureCredentialFromTokenCredential wraps a caller-supplied token
// credential. Used by tests to inject a fake token source.
func NewAzureCredentialFromTokenCredential(endpoint string, cred azcore.TokenCredential) *AzureCredential {
	return &AzureCredential{endpoint: endpoint, cred: cred}
}

// Apply adds the Azure AD bearer token to the request.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get Azure token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}

// Type returns "azure".
func (c *AzureCredential) Type() string {
	return "azure"
}

// Endpoint returns the configured Azure endpoint.
func (c *AzureCredential) Endpoint() string {
	return c.endpoint
}

// getToken retrieves the current Azure AD token, refreshing if necessary.
func (c *AzureCredential) getToken(ctx context.Context) (*azcore.AccessToken, error) {
	c.mu.RLock()
	if c.cachedToken != nil && c.cachedToken.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		token := c.cachedToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock
	if c.cachedToken != nil && c.cachedToken.ExpiresOn.After(time.Now().Add(tokenRefreshBuffer)) {
		return c.cachedToken, nil
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveServicesScope},
	})
	if err != nil {
		return nil, err
	}

	c.cachedToken = &token
	return &token, nil
}
