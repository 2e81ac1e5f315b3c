package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/journeyhq/journey/command"
)

// tracerName is the instrumentation scope name for journey tracing.
const tracerName = "github.com/journeyhq/journey"

// Tracing returns middleware that wraps command handling in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through
// with zero overhead.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided
// tracer, for testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, cmd *command.Command, next Handler) error {
		ctx, span := tracer.Start(ctx, "journey.command.handle",
			trace.WithAttributes(
				attribute.String("journey.instance.id", cmd.InstanceID.String()),
				attribute.String("journey.command.action", string(cmd.Action)),
				attribute.String("journey.command.actor", string(cmd.Actor)),
				attribute.String("journey.command.request_id", cmd.RequestID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
