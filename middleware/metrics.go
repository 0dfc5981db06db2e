package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/qmin/job"
)

// meterName is the instrumentation scope name for qmin metrics.
const meterName = "github.com/xraph/qmin"

// Metrics returns middleware that records per-call metrics with the global
// MeterProvider.
//
// Instruments:
//   - qmin.job.duration (Float64Histogram): handler call time in seconds,
//     with attributes: queue, status ("ok" or "error")
//   - qmin.job.executions (Int64Counter): handler calls,
//     with attributes: queue, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"qmin.job.duration",
		metric.WithDescription("Duration of handler calls in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"qmin.job.executions",
		metric.WithDescription("Total number of handler calls"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("queue", j.Queue),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
