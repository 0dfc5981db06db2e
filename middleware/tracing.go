package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/qmin/job"
)

// tracerName is the instrumentation scope name for qmin tracing.
const tracerName = "github.com/xraph/qmin"

// Tracing returns middleware that wraps each handler call in a span from
// the global TracerProvider. Without a configured provider it is a no-op.
//
// Span attributes: qmin.job.id, qmin.session.id, qmin.queue,
// qmin.producer.pid, qmin.producer.label, qmin.retry_count.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("qmin.job.id", j.ID.String()),
			attribute.String("qmin.session.id", j.SessionID.String()),
			attribute.String("qmin.queue", j.Queue),
		}
		if env := j.Envelope; env != nil {
			attrs = append(attrs,
				attribute.Int("qmin.producer.pid", env.ProducerID),
				attribute.String("qmin.producer.label", env.ProducerLabel),
				attribute.Int("qmin.retry_count", env.RetryCount),
			)
		}

		ctx, span := tracer.Start(ctx, "qmin.job.handle",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindConsumer),
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
