// Package testutil provides httptest-backed mock collaborators: the
// Anthropic API, the key service, and the run tracker.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// AnthropicMessagesResponse is the minimal Messages API response for tests.
type AnthropicMessagesResponse struct {
	ID      string `json:"id"`
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

// NewAnthropicServer starts an httptest.Server that responds to
// POST /v1/messages with a single text block containing content and the
// given usage counts. Caller must register t.Cleanup(server.Close).
func NewAnthropicServer(content string, inputTokens, outputTokens int) *httptest.Server {
	resp := AnthropicMessagesResponse{
		ID:         "msg_test",
		StopReason: "end_turn",
	}
	resp.Content = []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{{Type: "text", Text: content}}
	resp.Usage.InputTokens = inputTokens
	resp.Usage.OutputTokens = outputTokens

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(handler)
}

// NewFailingAnthropicServer starts an httptest.Server whose /v1/messages
// endpoint always fails with the given status.
func NewFailingAnthropicServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

// CallCounter counts requests for asserting exact outbound call counts.
type CallCounter struct {
	n atomic.Int64
}

// Count returns the number of requests seen so far.
func (c *CallCounter) Count() int {
	return int(c.n.Load())
}

// Wrap returns a handler that increments the counter before delegating.
func (c *CallCounter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.n.Add(1)
		next.ServeHTTP(w, r)
	})
}
