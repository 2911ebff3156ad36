package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	rqsotel "github.com/shamanic-technologies/reply-qualification-service/internal/otel"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs. The
// key-resolution mechanism is provider-agnostic; this provider exists so a
// deployment can point the service at an OpenAI-compatible backend.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider with a custom base
// URL (e.g. an httptest mock server). baseURL is scheme+host without path.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			rqsotel.GenAISystem.String("openai"),
			rqsotel.GenAIRequestModel.String(req.Model),
			rqsotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	span.SetAttributes(
		rqsotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		rqsotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		rqsotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
		rqsotel.GenAIResponseID.String(resp.ID),
	)

	raw, _ := json.Marshal(resp)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        req.Model,
		Raw:          raw,
	}, nil
}

// openaiPrices lists USD per 1M tokens by model.
var openaiPrices = map[string]tokenPricing{
	"gpt-4o":      {input: 2.50, output: 10.00},
	"gpt-4o-mini": {input: 0.15, output: 0.60},
}

// CostUSD computes the cost in USD for the given model and token counts.
func (p *OpenAIProvider) CostUSD(model string, inputTokens, outputTokens int) float64 {
	pr, ok := openaiPrices[model]
	if !ok {
		pr = openaiPrices["gpt-4o-mini"]
	}
	return costUSD(pr, inputTokens, outputTokens)
}
