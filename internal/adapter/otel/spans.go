package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "streamforge"

// StartTurnSpan starts a span for a streamed turn.
func StartTurnSpan(ctx context.Context, workspaceID, messageID, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("message.id", messageID),
			attribute.String("turn.model", model),
		),
	)
}

// StartTokenizeSpan starts a span for a token-count lookup.
func StartTokenizeSpan(ctx context.Context, model, label string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tokenize",
		trace.WithAttributes(
			attribute.String("tokenize.model", model),
			attribute.String("tokenize.label", label),
		),
	)
}
