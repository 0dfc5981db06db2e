package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.JobEnqueued       = (*MetricsExtension)(nil)
	_ ext.JobDequeued       = (*MetricsExtension)(nil)
	_ ext.JobCompleted      = (*MetricsExtension)(nil)
	_ ext.JobFailed         = (*MetricsExtension)(nil)
	_ ext.MessageRejected   = (*MetricsExtension)(nil)
	_ ext.ShutdownRequested = (*MetricsExtension)(nil)
	_ ext.SessionStopped    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/qmin/observability"

// MetricsExtension records system-wide lifecycle metrics with OpenTelemetry
// instruments. Every counter carries a queue attribute.
type MetricsExtension struct {
	JobEnqueued       metric.Int64Counter
	JobDequeued       metric.Int64Counter
	JobCompleted      metric.Int64Counter
	JobFailed         metric.Int64Counter
	MessageRejected   metric.Int64Counter
	ShutdownRequested metric.Int64Counter
	SessionStopped    metric.Int64Counter

	// QueueLatency is the time from enqueue to dequeue, in seconds.
	QueueLatency metric.Float64Histogram

	// CompletionTime is the time from dequeue to acknowledgment, in seconds.
	CompletionTime metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		h, _ := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}

	return &MetricsExtension{
		JobEnqueued:       counter("qmin.job.enqueued", "Envelopes pushed by producers"),
		JobDequeued:       counter("qmin.job.dequeued", "Envelopes popped by consumer sessions"),
		JobCompleted:      counter("qmin.job.completed", "Acknowledged jobs completed"),
		JobFailed:         counter("qmin.job.failed", "Jobs whose handler failed"),
		MessageRejected:   counter("qmin.message.rejected", "Popped items that could not be decoded"),
		ShutdownRequested: counter("qmin.session.shutdown_requested", "Sessions asked to shut down"),
		SessionStopped:    counter("qmin.session.stopped", "Sessions that reached a terminal state"),
		QueueLatency:      histogram("qmin.job.queue_latency", "Time from enqueue to dequeue"),
		CompletionTime:    histogram("qmin.job.completion_time", "Time from dequeue to acknowledgment"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func queueAttr(queue string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

// ── Producer hooks ──────────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, env *envelope.Envelope) error {
	m.JobEnqueued.Add(ctx, 1, queueAttr(env.QueueName))
	return nil
}

// ── Consumer hooks ──────────────────────────────────

// OnJobDequeued implements ext.JobDequeued.
func (m *MetricsExtension) OnJobDequeued(ctx context.Context, j *job.Job) error {
	m.JobDequeued.Add(ctx, 1, queueAttr(j.Queue))
	m.QueueLatency.Record(ctx, j.Latency().Seconds(), queueAttr(j.Queue))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobCompleted.Add(ctx, 1, queueAttr(j.Queue))
	m.CompletionTime.Record(ctx, elapsed.Seconds(), queueAttr(j.Queue))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.JobFailed.Add(ctx, 1, queueAttr(j.Queue))
	return nil
}

// OnMessageRejected implements ext.MessageRejected.
func (m *MetricsExtension) OnMessageRejected(ctx context.Context, queue string, _ []byte, _ error) error {
	m.MessageRejected.Add(ctx, 1, queueAttr(queue))
	return nil
}

// ── Shutdown hooks ──────────────────────────────────

// OnShutdownRequested implements ext.ShutdownRequested.
func (m *MetricsExtension) OnShutdownRequested(ctx context.Context, _ id.SessionID, queue string, _ int) error {
	m.ShutdownRequested.Add(ctx, 1, queueAttr(queue))
	return nil
}

// OnSessionStopped implements ext.SessionStopped.
func (m *MetricsExtension) OnSessionStopped(ctx context.Context, _ id.SessionID, queue string, forced bool) error {
	m.SessionStopped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.Bool("forced", forced),
	))
	return nil
}
