package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// KeyServiceServer is a mock key service. Keys maps decrypt paths (e.g.
// "/keys/anthropic/org/org-1/decrypt") to the plaintext key returned for
// them; unmapped paths return 404. It records every request for
// call-count and audit-header assertions.
type KeyServiceServer struct {
	*httptest.Server

	mu       sync.Mutex
	keys     map[string]string
	failWith int // when non-zero, every request fails with this status
	requests []*http.Request
}

// NewKeyServiceServer starts a mock key service holding the given keys.
// Caller must register t.Cleanup(server.Close).
func NewKeyServiceServer(keys map[string]string) *KeyServiceServer {
	if keys == nil {
		keys = map[string]string{}
	}
	ks := &KeyServiceServer{keys: keys}
	ks.Server = httptest.NewServer(http.HandlerFunc(ks.handle))
	return ks
}

// FailWith makes every subsequent request fail with the given status.
func (ks *KeyServiceServer) FailWith(status int) {
	ks.mu.Lock()
	ks.failWith = status
	ks.mu.Unlock()
}

// Requests returns a copy of all requests seen so far.
func (ks *KeyServiceServer) Requests() []*http.Request {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	out := make([]*http.Request, len(ks.requests))
	copy(out, ks.requests)
	return out
}

// CallCount returns the number of requests seen so far.
func (ks *KeyServiceServer) CallCount() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return len(ks.requests)
}

func (ks *KeyServiceServer) handle(w http.ResponseWriter, r *http.Request) {
	ks.mu.Lock()
	ks.requests = append(ks.requests, r.Clone(r.Context()))
	failWith := ks.failWith
	key, ok := ks.keys[r.URL.Path]
	ks.mu.Unlock()

	if failWith != 0 {
		w.WriteHeader(failWith)
		_, _ = w.Write([]byte("upstream failure"))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"key not found"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"provider": "anthropic",
		"key":      key,
	})
}
