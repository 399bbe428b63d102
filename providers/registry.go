package providers

import (
	"sync"
	"time"
)

// Registry manages available providers
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(provider Provider) {
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID
func (r *Registry) Get(id string) (Provider, bool) {
	provider, exists := r.providers[id]
	return provider, exists
}

// List returns all registered provider IDs
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// Close closes all registered providers and cleans up their resources
func (r *Registry) Close() error {
	for _, provider := range r.providers {
		if err := provider.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ProviderSpec holds the configuration needed to create a provider instance
type ProviderSpec struct {
	ID               string
	Type             string
	Model            string
	BaseURL          string
	Defaults         ProviderDefaults
	IncludeRawOutput bool
	AdditionalConfig map[string]interface{} // Flexible key-value pairs for provider-specific configuration
}

// defaultBaseURLs holds the well-known endpoint for each recognized HTTP
// provider type, used when a ProviderSpec omits BaseURL.
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"gemini":   "https://generativelanguage.googleapis.com",
	"claude":   "https://api.anthropic.com",
	"ollama":   "http://localhost:11434/v1",
	"vllm":     "http://localhost:8000/v1",
	"deepseek": "https://api.deepseek.com/v1",
}

// minCallInterval is the client-side pacing applied to every HTTP provider
// instance created through CreateProviderFromSpec. It is deliberately
// conservative; adapters fronting a specific vendor with a documented,
// higher rate limit can construct an HTTPProvider directly instead.
const minCallInterval = 100 * time.Millisecond

// ProviderFactory builds a Provider from a spec.
type ProviderFactory func(spec ProviderSpec) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers a constructor for a provider type,
// consulted by CreateProviderFromSpec before the built-in types. Packages
// providing richer implementations (e.g. the repository-backed mock)
// register themselves in init; the last registration for a type wins.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[providerType] = factory
}

func lookupFactory(providerType string) (ProviderFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[providerType]
	return f, ok
}

// CreateProviderFromSpec creates a provider implementation from a spec.
// Returns an error if the provider type is unsupported.
func CreateProviderFromSpec(spec ProviderSpec) (Provider, error) {
	if factory, ok := lookupFactory(spec.Type); ok {
		return factory(spec)
	}

	if spec.Type == "mock" {
		return NewMockProvider(spec.ID, spec.Model, spec.IncludeRawOutput), nil
	}

	baseURL := spec.BaseURL
	if baseURL == "" {
		var ok bool
		baseURL, ok = defaultBaseURLs[spec.Type]
		if !ok {
			return nil, &UnsupportedProviderError{ProviderType: spec.Type}
		}
	}

	apiKey, _ := spec.AdditionalConfig["api_key"].(string)
	return NewHTTPProvider(spec.ID, spec.Model, baseURL, apiKey, spec.Defaults, spec.IncludeRawOutput, minCallInterval), nil
}

// UnsupportedProviderError is returned when a provider type is not recognized
type UnsupportedProviderError struct {
	ProviderType string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider type: " + e.ProviderType
}
