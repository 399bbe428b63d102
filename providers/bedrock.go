package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/relaychat/conductor/credentials"
	"github.com/relaychat/conductor/internal/httputil"
	"github.com/relaychat/conductor/types"
)

// bedrockAnthropicVersion is the required anthropic_version body field for
// Anthropic models invoked through the Bedrock runtime.
const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockProvider invokes Anthropic models hosted on the AWS Bedrock
// runtime. Requests are SigV4-signed by a credentials.AWSCredential;
// ThrottlingException responses surface as ErrQuotaExhausted so the engine
// can fall back tiers.
type BedrockProvider struct {
	BaseProvider

	modelID  string
	region   string
	endpoint string
	cred     *credentials.AWSCredential
	defaults ProviderDefaults
	limiter  *rate.Limiter
}

// NewBedrockProvider creates a provider for one Bedrock model ID (e.g.
// "anthropic.claude-3-haiku-20240307-v1:0"). minInterval bounds
// client-side request spacing; pass 0 to disable pacing.
func NewBedrockProvider(
	id, modelID string,
	cred *credentials.AWSCredential,
	defaults ProviderDefaults,
	includeRawOutput bool,
	minInterval time.Duration,
) *BedrockProvider {
	client := &http.Client{
		Timeout:   httputil.DefaultProviderTimeout,
		Transport: httputil.NewInstrumentedTransport(NewPooledTransport()),
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &BedrockProvider{
		BaseProvider: NewBaseProvider(id, includeRawOutput, client),
		modelID:      modelID,
		region:       cred.Region(),
		endpoint:     credentials.BedrockEndpoint(cred.Region()),
		cred:         cred,
		defaults:     defaults,
		limiter:      limiter,
	}
}

// WithEndpoint overrides the runtime endpoint, for VPC interface endpoints
// or tests. Returns the provider for chaining.
func (p *BedrockProvider) WithEndpoint(endpoint string) *BedrockProvider {
	p.endpoint = endpoint
	return p
}

// bedrockMessagesRequest mirrors the Anthropic messages body accepted by
// the Bedrock invoke endpoints.
type bedrockMessagesRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float32          `json:"temperature,omitempty"`
	TopP             float32          `json:"top_p,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// bedrockStreamEvent is the decoded shape of one streamed model event.
type bedrockStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

func (p *BedrockProvider) invokeURL(streaming bool) string {
	suffix := "/invoke"
	if streaming {
		suffix = "/invoke-with-response-stream"
	}
	return p.endpoint + "/model/" + p.modelID + suffix
}

// Chat performs a single, non-streaming model invocation.
func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	respBytes, err := p.doSignedRequest(ctx, p.invokeURL(false), p.buildRequest(req), "application/json")
	if err != nil {
		return ChatResponse{}, err
	}

	var parsed bedrockMessagesResponse
	chatResp := ChatResponse{Latency: time.Since(start)}
	if err := UnmarshalJSON(respBytes, &parsed, &chatResp, start); err != nil {
		return chatResp, err
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return chatResp, fmt.Errorf("provider %s returned no text content", p.ID())
	}

	chatResp.Content = sb.String()
	chatResp.CostInfo = ptrCostInfo(p.CalculateCost(parsed.Usage.InputTokens, parsed.Usage.OutputTokens, 0))
	return chatResp, nil
}

// ChatStream invokes the model with a streamed response, decoding AWS
// binary event-stream frames into incremental StreamChunks.
func (p *BedrockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	httpResp, err := p.doSignedStreamRequest(ctx, p.invokeURL(true), p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		var content strings.Builder
		var inputTokens, outputTokens int
		scanner := NewBedrockEventScanner(httpResp.Body)
		for scanner.Scan() {
			var event bedrockStreamEvent
			if err := json.Unmarshal([]byte(scanner.Data()), &event); err != nil {
				continue
			}
			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					content.WriteString(event.Delta.Text)
					select {
					case <-ctx.Done():
						return
					case out <- StreamChunk{Content: content.String(), Delta: event.Delta.Text}:
					}
				}
			case "message_delta":
				if event.Usage.OutputTokens > 0 {
					outputTokens = event.Usage.OutputTokens
				}
			}
		}

		if err := scanner.Err(); err != nil {
			errStr := err.Error()
			out <- StreamChunk{Content: content.String(), Error: err, FinishReason: &errStr}
			return
		}

		finish := "stop"
		out <- StreamChunk{
			Content:      content.String(),
			FinishReason: &finish,
			CostInfo:     ptrCostInfo(p.CalculateCost(inputTokens, outputTokens, 0)),
		}
	}()
	return out, nil
}

// SupportsStreaming reports true; Bedrock streams natively.
func (p *BedrockProvider) SupportsStreaming() bool { return true }

// CalculateCost applies the configured per-1K-token pricing.
func (p *BedrockProvider) CalculateCost(inputTokens, outputTokens, cachedTokens int) types.CostInfo {
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

func (p *BedrockProvider) buildRequest(req ChatRequest) bedrockMessagesRequest {
	messages := make([]bedrockMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, bedrockMessage{Role: string(m.Role), Content: m.Content})
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
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return bedrockMessagesRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         messages,
		Temperature:      temperature,
		TopP:             topP,
	}
}

// doSignedRequest posts a SigV4-signed JSON body and returns the response
// bytes, mapping throttle responses to the distinguished quota error.
func (p *BedrockProvider) doSignedRequest(ctx context.Context, url string, body any, accept string) ([]byte, error) {
	resp, err := p.send(ctx, url, body, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := p.checkStatus(resp.StatusCode, respBytes); err != nil {
		return nil, err
	}
	return respBytes, nil
}

// doSignedStreamRequest posts a SigV4-signed JSON body and hands back the
// open response for event-stream decoding.
func (p *BedrockProvider) doSignedStreamRequest(ctx context.Context, url string, body any) (*http.Response, error) {
	resp, err := p.send(ctx, url, body, "application/vnd.amazon.eventstream")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBytes, _ := io.ReadAll(resp.Body)
		return nil, p.checkStatus(resp.StatusCode, respBytes)
	}
	return resp, nil
}

func (p *BedrockProvider) send(ctx context.Context, url string, body any, accept string) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	if err := p.cred.Apply(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := p.GetHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (p *BedrockProvider) checkStatus(statusCode int, body []byte) error {
	if statusCode == http.StatusOK {
		return nil
	}
	if statusCode == http.StatusTooManyRequests || bytes.Contains(body, []byte("ThrottlingException")) {
		return fmt.Errorf("bedrock model %s throttled: %w", p.modelID, ErrQuotaExhausted)
	}
	return ParsePlatformHTTPError("bedrock", statusCode, body)
}
