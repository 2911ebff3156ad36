// Package keyvault resolves upstream AI provider credentials from the
// external key service.
//
// Each lookup is a single authenticated GET against a scope-specific path.
// A 404 means the scope has no key configured and is reported as
// ErrNotConfigured, distinct from any transport or server failure: only
// "not configured" may trigger fallback during resolution; everything else
// aborts immediately.
package keyvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrNotConfigured is returned when the requested scope has no key
// configured in the key service. Call sites branch on it with errors.Is.
var ErrNotConfigured = errors.New("key not configured")

// CallerContext is audit metadata attached to every outbound key service
// call. Created once per inbound request; never mutated.
type CallerContext struct {
	Service string
	Method  string
	Path    string
}

// Client is a read-only client for the key service decrypt endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a key service client. apiKey authenticates this service
// to the key service; it is unrelated to the provider keys being resolved.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type decryptKeyResponse struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
}

// PlatformKey fetches the shared platform-level key for a provider.
func (c *Client) PlatformKey(ctx context.Context, provider string, cc CallerContext) (string, error) {
	path := fmt.Sprintf("/keys/%s/platform/decrypt", url.PathEscape(provider))
	return c.decrypt(ctx, path, cc)
}

// OrgKey fetches the organization-scoped (BYOK) key for a provider.
func (c *Client) OrgKey(ctx context.Context, provider, orgID string, cc CallerContext) (string, error) {
	path := fmt.Sprintf("/keys/%s/org/%s/decrypt", url.PathEscape(provider), url.PathEscape(orgID))
	return c.decrypt(ctx, path, cc)
}

// AppKey fetches the application-scoped key for a provider.
func (c *Client) AppKey(ctx context.Context, provider, appID string, cc CallerContext) (string, error) {
	path := fmt.Sprintf("/keys/%s/app/%s/decrypt", url.PathEscape(provider), url.PathEscape(appID))
	return c.decrypt(ctx, path, cc)
}

func (c *Client) decrypt(ctx context.Context, path string, cc CallerContext) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("key service api key is not set")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("creating key service request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("x-caller-service", cc.Service)
	req.Header.Set("x-caller-method", cc.Method)
	req.Header.Set("x-caller-path", cc.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("key service GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("key service GET %s: %w", path, ErrNotConfigured)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("key service GET %s failed (%d): %s", path, resp.StatusCode, string(body))
	}

	var decoded decryptKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding key service response: %w", err)
	}
	if decoded.Key == "" {
		return "", fmt.Errorf("key service GET %s returned an empty key", path)
	}
	return decoded.Key, nil
}
