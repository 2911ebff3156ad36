package keyvault

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamanic-technologies/reply-qualification-service/internal/testutil"
)

var testCaller = CallerContext{
	Service: "reply-qualification-service",
	Method:  http.MethodPost,
	Path:    "/v1/qualify",
}

func TestClient_PlatformKey(t *testing.T) {
	ks := testutil.NewKeyServiceServer(map[string]string{
		"/keys/anthropic/platform/decrypt": "sk-platform",
	})
	t.Cleanup(ks.Close)

	client := NewClient(ks.URL, "service-key")
	key, err := client.PlatformKey(context.Background(), "anthropic", testCaller)
	require.NoError(t, err)
	assert.Equal(t, "sk-platform", key)
}

func TestClient_AuditHeaders(t *testing.T) {
	ks := testutil.NewKeyServiceServer(map[string]string{
		"/keys/anthropic/org/org-1/decrypt": "sk-org",
	})
	t.Cleanup(ks.Close)

	client := NewClient(ks.URL, "service-key")
	_, err := client.OrgKey(context.Background(), "anthropic", "org-1", testCaller)
	require.NoError(t, err)

	reqs := ks.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "service-key", reqs[0].Header.Get("X-API-Key"))
	assert.Equal(t, "reply-qualification-service", reqs[0].Header.Get("x-caller-service"))
	assert.Equal(t, "POST", reqs[0].Header.Get("x-caller-method"))
	assert.Equal(t, "/v1/qualify", reqs[0].Header.Get("x-caller-path"))
}

func TestClient_NotFoundIsNotConfigured(t *testing.T) {
	ks := testutil.NewKeyServiceServer(nil)
	t.Cleanup(ks.Close)

	client := NewClient(ks.URL, "service-key")
	_, err := client.AppKey(context.Background(), "anthropic", "some-app", testCaller)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestClient_ServerErrorIsNotNotConfigured(t *testing.T) {
	ks := testutil.NewKeyServiceServer(nil)
	t.Cleanup(ks.Close)
	ks.FailWith(http.StatusInternalServerError)

	client := NewClient(ks.URL, "service-key")
	_, err := client.PlatformKey(context.Background(), "anthropic", testCaller)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotConfigured))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upstream failure")
}

func TestClient_MissingAPIKeyFailsWithoutNetworkCall(t *testing.T) {
	ks := testutil.NewKeyServiceServer(nil)
	t.Cleanup(ks.Close)

	client := NewClient(ks.URL, "")
	_, err := client.PlatformKey(context.Background(), "anthropic", testCaller)
	require.Error(t, err)
	assert.Equal(t, 0, ks.CallCount())
}
