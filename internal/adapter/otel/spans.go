package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "apfabric"

// StartPipelineSpan starts a span covering one full orchestration run.
func StartPipelineSpan(ctx context.Context, invoiceID, vendorID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline",
		trace.WithAttributes(
			attribute.String("invoice.id", invoiceID),
			attribute.String("vendor.id", vendorID),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, invoiceID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage",
		trace.WithAttributes(
			attribute.String("invoice.id", invoiceID),
			attribute.String("stage.name", stage),
		),
	)
}

// StartReasonerSpan starts a span for an external reasoning call.
func StartReasonerSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reasoner",
		trace.WithAttributes(
			attribute.String("reasoner.operation", operation),
		),
	)
}
