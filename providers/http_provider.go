package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaychat/conductor/internal/httputil"
	"github.com/relaychat/conductor/types"
)

// HTTPProvider is a generic chat-completions provider that speaks the widely
// adopted OpenAI-compatible wire format. It replaces having a dedicated
// hand-rolled client per vendor: any endpoint implementing the
// `/chat/completions`-style contract (including most self-hosted gateways
// and proxies) can be reached by pointing it at a different BaseURL and
// Model.
//
// Requests are rate limited client-side so a single noisy caller cannot
// starve the shared outbound connection pool; the limiter is intentionally
// coarse (model call spacing, not precise token-bucket accounting).
type HTTPProvider struct {
	BaseProvider

	model    string
	baseURL  string
	apiKey   string
	defaults ProviderDefaults
	limiter  *rate.Limiter
}

// NewHTTPProvider creates a generic HTTP provider for the given id/model pair.
// apiKey may be empty for unauthenticated endpoints (e.g. local gateways).
// minInterval bounds the minimum spacing between outbound requests; pass 0
// to disable client-side pacing.
func NewHTTPProvider(id, model, baseURL, apiKey string, defaults ProviderDefaults, includeRawOutput bool, minInterval time.Duration) *HTTPProvider {
	client := &http.Client{
		Timeout:   httputil.DefaultProviderTimeout,
		Transport: httputil.NewInstrumentedTransport(NewPooledTransport()),
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(id, includeRawOutput, client),
		model:        model,
		baseURL:      baseURL,
		apiKey:       apiKey,
		defaults:     defaults,
		limiter:      limiter,
	}
}

// openAIChatRequest mirrors the request body accepted by OpenAI-compatible
// /chat/completions endpoints.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float32             `json:"temperature,omitempty"`
	TopP        float32             `json:"top_p,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Seed        *int                `json:"seed,omitempty"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
		Finish  string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat performs a single, non-streaming chat completion request.
func (p *HTTPProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	body := p.buildRequest(req)

	headers := RequestHeaders{"Content-Type": "application/json"}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	respBytes, err := p.MakeJSONRequest(ctx, p.baseURL+"/chat/completions", body, headers, p.ID())
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

// ChatStream performs a chat completion and delivers it as a single terminal
// chunk. Real server-sent-event streaming is left to the sse.go decoder used
// by tests; this generic client favors correctness over token-by-token
// delivery across arbitrary OpenAI-compatible backends.
func (p *HTTPProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
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

// SupportsStreaming reports true; ChatStream always succeeds (synchronously
// internally) even though it is not token-incremental.
func (p *HTTPProvider) SupportsStreaming() bool { return true }

// CalculateCost applies the configured per-1K-token pricing.
func (p *HTTPProvider) CalculateCost(inputTokens, outputTokens, cachedTokens int) types.CostInfo {
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

func (p *HTTPProvider) buildRequest(req ChatRequest) openAIChatRequest {
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
		Model:       p.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Seed:        req.Seed,
	}
}

func ptrCostInfo(c types.CostInfo) *types.CostInfo { return &c }
