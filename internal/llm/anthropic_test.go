package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamanic-technologies/reply-qualification-service/internal/testutil"
)

func TestAnthropicProvider_Generate(t *testing.T) {
	server := testutil.NewAnthropicServer("hello from the model", 42, 7)
	t.Cleanup(server.Close)

	p := NewAnthropicProviderWithBaseURL("sk-test", server.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model:     "claude-3-haiku-20240307",
		System:    "be brief",
		MaxTokens: 256,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", resp.Content)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.NotEmpty(t, resp.Raw)
}

func TestAnthropicProvider_GenerateErrorIncludesBody(t *testing.T) {
	server := testutil.NewFailingAnthropicServer(http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error"}}`)
	t.Cleanup(server.Close)

	p := NewAnthropicProviderWithBaseURL("bad-key", server.URL)
	_, err := p.Generate(context.Background(), &Request{
		Model:     "claude-3-haiku-20240307",
		MaxTokens: 256,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "authentication_error")
}

func TestAnthropicProvider_CostUSD(t *testing.T) {
	p := NewAnthropicProvider("sk-test")

	assert.InDelta(t, 0.000875, p.CostUSD("claude-3-haiku-20240307", 1000, 500), 1e-12)
	assert.Equal(t, 0.0, p.CostUSD("claude-3-haiku-20240307", 0, 0))

	// Unknown models use the default haiku pricing.
	assert.InDelta(t,
		p.CostUSD("claude-3-haiku-20240307", 100, 100),
		p.CostUSD("some-future-model", 100, 100),
		1e-12)
}

func TestNewProviderWithKey(t *testing.T) {
	p, err := NewProviderWithKey("anthropic", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = NewProviderWithKey("openai", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProviderWithKey("bedrock", "sk-test")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestProviderCache_ReusesByKeyValue(t *testing.T) {
	var cache ProviderCache

	p1, err := cache.Get("anthropic", "sk-platform")
	require.NoError(t, err)
	p2, err := cache.Get("anthropic", "sk-platform")
	require.NoError(t, err)
	assert.Same(t, p1, p2, "same key must return the memoized provider")

	p3, err := cache.Get("anthropic", "sk-rotated")
	require.NoError(t, err)
	assert.NotSame(t, p1, p3, "a rotated key must produce a fresh provider")
}
