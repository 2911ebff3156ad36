package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const costMeterName = "github.com/shamanic-technologies/reply-qualification-service/internal/llm"

var (
	costRequestHistogram  metric.Float64Histogram
	costMetricsOnce       sync.Once
	costMetricsRegistered bool
)

func initCostMetrics() {
	meter := otel.Meter(costMeterName)
	var err error
	costRequestHistogram, err = meter.Float64Histogram(
		"replyqual.cost.request",
		metric.WithDescription("Cost in USD per qualification request"),
		metric.WithUnit("usd"),
	)
	if err != nil {
		return
	}
	costMetricsRegistered = true
}

// RecordCostMetrics records the cost of one qualification call. The model
// and key_source attributes allow per-tier filtering in observability
// backends.
func RecordCostMetrics(ctx context.Context, costUSD float64, model, keySource string) {
	costMetricsOnce.Do(initCostMetrics)
	if !costMetricsRegistered {
		return
	}
	costRequestHistogram.Record(ctx, costUSD, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("key_source", keySource),
	))
}
