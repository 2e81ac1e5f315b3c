package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/journeyhq/journey/command"
)

// meterName is the instrumentation scope name for journey metrics.
const meterName = "github.com/journeyhq/journey"

// Metrics returns middleware that records per-command handling metrics
// using the global OTel MeterProvider. With no provider configured the
// instruments are noops.
//
// Instruments:
//   - journey.command.duration (Float64Histogram): handle time in
//     seconds, with attributes: action, actor, status ("ok" or "error")
//   - journey.command.handled (Int64Counter): total commands handled,
//     same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter,
// for injecting a specific MeterProvider in tests.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once here; on error the OTel API returns
	// noop instruments, so the middleware degrades gracefully.
	duration, _ := meter.Float64Histogram(
		"journey.command.duration",
		metric.WithDescription("Duration of command handling in seconds"),
		metric.WithUnit("s"),
	)
	handled, _ := meter.Int64Counter(
		"journey.command.handled",
		metric.WithDescription("Total number of commands handled"),
		metric.WithUnit("{command}"),
	)

	return func(ctx context.Context, cmd *command.Command, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("action", string(cmd.Action)),
			attribute.String("actor", string(cmd.Actor)),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		handled.Add(ctx, 1, attrs)

		return err
	}
}
