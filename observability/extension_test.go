package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
	"github.com/xraph/qmin/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return job.New("emailQueue", envelope.New("emailQueue", []byte(`{}`)), envelope.JSONCodec{})
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	sess := id.NewSessionID()

	tests := []struct {
		metric string
		fire   func(e *observability.MetricsExtension) error
	}{
		{"qmin.job.enqueued", func(e *observability.MetricsExtension) error {
			return e.OnJobEnqueued(ctx, envelope.New("emailQueue", nil))
		}},
		{"qmin.job.dequeued", func(e *observability.MetricsExtension) error {
			return e.OnJobDequeued(ctx, newTestJob())
		}},
		{"qmin.job.completed", func(e *observability.MetricsExtension) error {
			return e.OnJobCompleted(ctx, newTestJob(), 100*time.Millisecond)
		}},
		{"qmin.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestJob(), errors.New("boom"))
		}},
		{"qmin.message.rejected", func(e *observability.MetricsExtension) error {
			return e.OnMessageRejected(ctx, "emailQueue", []byte("x"), errors.New("bad"))
		}},
		{"qmin.session.shutdown_requested", func(e *observability.MetricsExtension) error {
			return e.OnShutdownRequested(ctx, sess, "emailQueue", 3)
		}},
		{"qmin.session.stopped", func(e *observability.MetricsExtension) error {
			return e.OnSessionStopped(ctx, sess, "emailQueue", true)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 1 {
				t.Errorf("%s = %d, want 1", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	r := ext.NewRegistry(slog.Default())
	r.Register(e)

	ctx := context.Background()
	j := newTestJob()

	r.EmitJobEnqueued(ctx, j.Envelope)
	r.EmitJobDequeued(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Millisecond)
	r.EmitJobDequeued(ctx, j)
	r.EmitJobFailed(ctx, j, errors.New("x"))

	if got := counterValue(t, reader, "qmin.job.dequeued"); got != 2 {
		t.Errorf("dequeued = %d, want 2", got)
	}
	if got := counterValue(t, reader, "qmin.job.completed"); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if got := counterValue(t, reader, "qmin.job.failed"); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnJobDequeued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
