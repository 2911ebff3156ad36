package runs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	rqsotel "github.com/shamanic-technologies/reply-qualification-service/internal/otel"
)

// Recorder is the best-effort bookkeeping wrapper around one qualification.
// Every call is firewalled: a run tracker failure is logged and swallowed,
// never propagated, never retried. A nil *Handle is safe to use, so the
// qualification proceeds unchanged when the tracker is down.
//
// Costs and the terminal status are only sent after the invocation outcome
// is known; the Handle has no way to report them earlier.
type Recorder struct {
	client *Client
}

// NewRecorder creates a Recorder. client may be nil, in which case Open
// always returns a nil handle.
func NewRecorder(client *Client) *Recorder {
	return &Recorder{client: client}
}

// Handle refers to one open run. Methods on a nil Handle are no-ops.
type Handle struct {
	client *Client
	runID  string
}

// Open creates a run and returns a handle to it. On failure it logs and
// returns nil so the caller can continue without bookkeeping.
func (r *Recorder) Open(ctx context.Context, params CreateRunParams) *Handle {
	if r == nil || r.client == nil {
		return nil
	}
	run, err := r.client.CreateRun(ctx, params)
	if err != nil {
		log.Error().Err(err).Func(rqsotel.LogTraceFields(ctx)).Msg("runs_create_failed")
		return nil
	}
	return &Handle{client: r.client, runID: run.ID}
}

// RunID returns the tracker-assigned run id, or "" for a nil handle.
func (h *Handle) RunID() string {
	if h == nil {
		return ""
	}
	return h.runID
}

// RecordCosts appends the input and output token line items, tagged with
// the credential tier that actually serviced the call.
func (h *Handle) RecordCosts(ctx context.Context, model, tier string, inputTokens, outputTokens int) {
	if h == nil {
		return
	}
	items := []CostItem{
		{CostName: fmt.Sprintf("anthropic-%s-tokens-input", model), CostSource: tier, Quantity: inputTokens},
		{CostName: fmt.Sprintf("anthropic-%s-tokens-output", model), CostSource: tier, Quantity: outputTokens},
	}
	if err := h.client.AddCosts(ctx, h.runID, items); err != nil {
		log.Error().Err(err).Str("run_id", h.runID).Func(rqsotel.LogTraceFields(ctx)).Msg("runs_add_costs_failed")
	}
}

// Complete marks the run completed.
func (h *Handle) Complete(ctx context.Context) {
	h.close(ctx, StatusCompleted)
}

// Fail marks the run failed.
func (h *Handle) Fail(ctx context.Context) {
	h.close(ctx, StatusFailed)
}

func (h *Handle) close(ctx context.Context, status string) {
	if h == nil {
		return
	}
	if err := h.client.UpdateStatus(ctx, h.runID, status); err != nil {
		log.Error().Err(err).Str("run_id", h.runID).Str("status", status).
			Func(rqsotel.LogTraceFields(ctx)).Msg("runs_update_status_failed")
	}
}
