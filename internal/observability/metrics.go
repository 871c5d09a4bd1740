package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OTel metric instruments for the assistant.
type Metrics struct {
	ToolCalls      metric.Int64Counter
	ConsentLatency metric.Float64Histogram
	ConsentCount   metric.Int64Counter
	ModelTokens    metric.Int64Counter
	ModelCost      metric.Float64Counter
}

// NewMetrics creates the assistant metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("assistant")

	toolCalls, err := meter.Int64Counter("assistant.tool.calls",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}

	consentLatency, err := meter.Float64Histogram("assistant.consent.latency_seconds",
		metric.WithDescription("Time from consent prompt to resolution"),
	)
	if err != nil {
		return nil, err
	}

	consentCount, err := meter.Int64Counter("assistant.consent.count",
		metric.WithDescription("Consent requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	modelTokens, err := meter.Int64Counter("assistant.model.tokens",
		metric.WithDescription("Model tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	modelCost, err := meter.Float64Counter("assistant.model.cost_dollars",
		metric.WithDescription("Estimated model spend in dollars"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ToolCalls:      toolCalls,
		ConsentLatency: consentLatency,
		ConsentCount:   consentCount,
		ModelTokens:    modelTokens,
		ModelCost:      modelCost,
	}, nil
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, origin string, isError bool) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("origin", origin),
			attribute.Bool("error", isError),
		),
	)
}

// RecordConsent records a resolved consent request and its latency.
func (m *Metrics) RecordConsent(ctx context.Context, outcome string, d time.Duration) {
	m.ConsentCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.ConsentLatency.Record(ctx, d.Seconds())
}

// RecordModelUsage records tokens and estimated cost for one run.
func (m *Metrics) RecordModelUsage(ctx context.Context, inputTokens, outputTokens int64, costUSD float64) {
	m.ModelTokens.Add(ctx, inputTokens,
		metric.WithAttributes(attribute.String("direction", "input")),
	)
	m.ModelTokens.Add(ctx, outputTokens,
		metric.WithAttributes(attribute.String("direction", "output")),
	)
	m.ModelCost.Add(ctx, costUSD)
}
