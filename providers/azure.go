package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaychat/conductor/credentials"
	"github.com/relaychat/conductor/internal/httputil"
	"github.com/relaychat/conductor/types"
)

// defaultAzureAPIVersion is the api-version query parameter sent when the
// caller does not pin one.
const defaultAzureAPIVersion = "2024-06-01"

// AzureOpenAIProvider speaks the Azure OpenAI deployments wire format:
// the OpenAI chat-completions contract hosted under
// /openai/deployments/<deployment>/chat/completions with an api-version
// query parameter. Authentication is pluggable — an "api-key" header via
// credentials.APIKeyCredential, or Azure AD bearer tokens via
// credentials.AzureCredential.
type AzureOpenAIProvider struct {
	BaseProvider

	endpoint   string
	deployment string
	apiVersion string
	cred       credentials.Credential
	defaults   ProviderDefaults
	limiter    *rate.Limiter
}

// NewAzureOpenAIProvider creates a provider for one Azure OpenAI
// deployment. minInterval bounds client-side request spacing; pass 0 to
// disable pacing.
func NewAzureOpenAIProvider(
	id, endpoint, deployment, apiVersion string,
	cred credentials.Credential,
	defaults ProviderDefaults,
	includeRawOutput bool,
	minInterval time.Duration,
) *AzureOpenAIProvider {
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}
	if cred == nil {
		cred = &credentials.NoOpCredential{}
	}
	client := &http.Client{
		Timeout:   httputil.DefaultProviderTimeout,
		Transport: httputil.NewInstrumentedTransport(NewPooledTransport()),
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &AzureOpenAIProvider{
		BaseProvider: NewBaseProvider(id, includeRawOutput, client),
		endpoint:     endpoint,
		deployment:   deployment,
		apiVersion:   apiVersion,
		cred:         cred,
		defaults:     defaults,
		limiter:      limiter,
	}
}

func (p *AzureOpenAIProvider) chatCompletionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)
}

// Chat performs a single, non-streaming chat completion request against
// the deployment. HTTP 429 surfaces as ErrQuotaExhausted so the engine can
// fall back tiers.
func (p *AzureOpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	body := p.buildRequest(req)

	respBytes, err := p.doSignedJSONRequest(ctx, p.chatCompletionsURL(), body)
	if err != nil {
		return ChatResponse{}, err
	}

	var parsed openAIChatResponse
	chatResp := ChatResponse{Latency: time.Since(start)}
	if err := UnmarshalJSON(respBytes, &parsed, &chatResp, start); err != nil {
		return chatResp, err
	}

	if len(parsed.Choices) == 0 {
		return chatResp, fmt.Errorf("provider %s returned no choices", p.ID())
	}

	chatResp.Content = parsed.Choices[0].Message.Content
	chatResp.CostInfo = ptrCostInfo(p.CalculateCost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, 0))
	return chatResp, nil
}

// doSignedJSONRequest posts a JSON body with the configured credential
// applied, mapping throttle responses to the distinguished quota error.
func (p *AzureOpenAIProvider) doSignedJSONRequest(ctx context.Context, url string, body any) ([]byte, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := p.cred.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply credential: %w", err)
	}

	resp, err := p.GetHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("azure deployment %s throttled: %w", p.deployment, ErrQuotaExhausted)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ParsePlatformHTTPError("azure", resp.StatusCode, respBytes)
	}

	return respBytes, nil
}

// ChatStream performs a chat completion and delivers it as a single
// terminal chunk, matching HTTPProvider's conservative streaming shape.
func (p *AzureOpenAIProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 1)
	go func() {
		defer close(out)
		resp, err := p.Chat(ctx, req)
		if err != nil {
			errStr := err.Error()
			out <- StreamChunk{Error: err, FinishReason: &errStr}
			return
		}
		finish := "stop"
		out <- StreamChunk{
			Content:      resp.Content,
			Delta:        resp.Content,
			FinishReason: &finish,
			CostInfo:     resp.CostInfo,
		}
	}()
	return out, nil
}

// SupportsStreaming reports true.
func (p *AzureOpenAIProvider) SupportsStreaming() bool { return true }

// CalculateCost applies the configured per-1K-token pricing.
func (p *AzureOpenAIProvider) CalculateCost(inputTokens, outputTokens, cachedTokens int) types.CostInfo {
	in := float64(inputTokens) / 1000 * p.defaults.Pricing.InputCostPer1K
	out := float64(outputTokens) / 1000 * p.defaults.Pricing.OutputCostPer1K
	return types.CostInfo{
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		CachedTokens:  cachedTokens,
		InputCostUSD:  in,
		OutputCostUSD: out,
		TotalCost:     in + out,
	}
}

func (p *AzureOpenAIProvider) buildRequest(req ChatRequest) openAIChatRequest {
	messages := make([]openAIChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, openAIChatMessage{Role: string(m.Role), Content: m.Content})
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.defaults.Temperature
	}
	topP := req.TopP
	if topP == 0 {
		topP = p.defaults.TopP
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.defaults.MaxTokens
	}

	return openAIChatRequest{
		Model:       p.deployment,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Seed:        req.Seed,
	}
}
