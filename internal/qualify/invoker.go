package qualify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shamanic-technologies/reply-qualification-service/internal/keyvault"
	"github.com/shamanic-technologies/reply-qualification-service/internal/llm"
	rqsotel "github.com/shamanic-technologies/reply-qualification-service/internal/otel"
)

var tracer = rqsotel.Tracer("github.com/shamanic-technologies/reply-qualification-service/internal/qualify")

// EmailInput is the content to qualify. At least one of BodyText and
// BodyHTML should be non-empty; validation happens at the HTTP boundary.
type EmailInput struct {
	Subject  string
	BodyText string
	BodyHTML string
}

// Invoker issues qualification calls against a resolved credential.
type Invoker struct {
	model     string
	maxTokens int
}

// NewInvoker creates an Invoker for the given model with a bounded maximum
// output size.
func NewInvoker(model string, maxTokens int) *Invoker {
	return &Invoker{model: model, maxTokens: maxTokens}
}

// Model returns the model this invoker calls.
func (inv *Invoker) Model() string {
	return inv.model
}

// Invoke classifies one email reply. A failure of the provider call itself
// propagates to the caller; only parsing of a successful response tolerates
// malformed content (substituting the fixed fallback result).
func (inv *Invoker) Invoke(ctx context.Context, provider llm.Provider, tier keyvault.Tier, input EmailInput) (*Result, error) {
	ctx, span := tracer.Start(ctx, "qualify.invoke",
		trace.WithAttributes(
			attribute.String("model", inv.model),
			attribute.String("key_source", string(tier)),
		))
	defer span.End()

	body := NormalizeBody(input.BodyText, input.BodyHTML)

	resp, err := provider.Generate(ctx, &llm.Request{
		Model:     inv.model,
		System:    systemPrompt,
		MaxTokens: inv.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserMessage(input.Subject, body)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("qualification call: %w", err)
	}

	classification, confidence, reasoning, suggestedAction, details := parseModelOutput(resp.Content)

	cost := provider.CostUSD(inv.model, resp.InputTokens, resp.OutputTokens)
	llm.RecordCostMetrics(ctx, cost, inv.model, string(tier))

	return &Result{
		Classification:   classification,
		Confidence:       confidence,
		Reasoning:        reasoning,
		SuggestedAction:  suggestedAction,
		ExtractedDetails: details,
		InputTokens:      resp.InputTokens,
		OutputTokens:     resp.OutputTokens,
		CostUSD:          cost,
		Model:            inv.model,
		KeySource:        tier,
		ResponseRaw:      resp.Raw,
	}, nil
}
