// Package llm provides the chat-completion providers used for reply
// qualification. The resolution mechanism is provider-agnostic; this
// service calls Anthropic by default.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a single completion call.
const TimeoutLLMCall = 60 * time.Second

var (
	// ErrUnknownProvider is returned when a provider name has no implementation.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is the interface all completion providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// CostUSD computes the cost in USD for the given model and token counts.
	CostUSD(model string, inputTokens, outputTokens int) float64
}

// Request represents a completion request.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Message represents a chat message.
type Message struct {
	Role    string // "user", "assistant"
	Content string
}

// Response represents a completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	Raw          []byte // provider response body, persisted for debugging
}

// NewProviderWithKey creates a fresh Provider for the named backend using
// the given API key. Returns ErrUnknownProvider for unrecognized names.
func NewProviderWithKey(providerName, apiKey string) (Provider, error) {
	switch providerName {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, ErrUnknownProvider
	}
}
