package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// RunsCall is one recorded call against the mock run tracker.
type RunsCall struct {
	Method string
	Path   string
	Body   string
}

// RunsServiceServer is a mock run tracker. It assigns the run id
// "run-test-1" to created runs and records every call.
type RunsServiceServer struct {
	*httptest.Server

	mu       sync.Mutex
	failWith int
	calls    []RunsCall
}

// NewRunsServiceServer starts a mock run tracker.
// Caller must register t.Cleanup(server.Close).
func NewRunsServiceServer() *RunsServiceServer {
	rs := &RunsServiceServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(rs.handle))
	return rs
}

// TestRunID is the run id assigned by the mock tracker.
const TestRunID = "run-test-1"

// FailWith makes every subsequent request fail with the given status.
func (rs *RunsServiceServer) FailWith(status int) {
	rs.mu.Lock()
	rs.failWith = status
	rs.mu.Unlock()
}

// Calls returns a copy of all recorded calls.
func (rs *RunsServiceServer) Calls() []RunsCall {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]RunsCall, len(rs.calls))
	copy(out, rs.calls)
	return out
}

func (rs *RunsServiceServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	rs.mu.Lock()
	rs.calls = append(rs.calls, RunsCall{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	failWith := rs.failWith
	rs.mu.Unlock()

	if failWith != 0 {
		w.WriteHeader(failWith)
		_, _ = w.Write([]byte("tracker failure"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/runs":
		_ = json.NewEncoder(w).Encode(map[string]string{"id": TestRunID, "status": "running"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/costs"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"costs": []interface{}{}})
	case r.Method == http.MethodPatch:
		_ = json.NewEncoder(w).Encode(map[string]string{"id": TestRunID, "status": "completed"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
