package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobEnqueued       = (*Extension)(nil)
	_ ext.JobDequeued       = (*Extension)(nil)
	_ ext.JobCompleted      = (*Extension)(nil)
	_ ext.JobFailed         = (*Extension)(nil)
	_ ext.MessageRejected   = (*Extension)(nil)
	_ ext.ShutdownRequested = (*Extension)(nil)
	_ ext.SessionStopped    = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Timestamp time.Time `json:"ts"`

	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity values.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension records qmin lifecycle events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension recording through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job hooks ───────────────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued. Envelopes carry no identifier,
// so the queue is the resource.
func (e *Extension) OnJobEnqueued(ctx context.Context, env *envelope.Envelope) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceQueue, env.QueueName, CategoryJob, nil,
		"producer_pid", env.ProducerID,
		"producer", env.ProducerLabel,
		"bytes", len(env.Data),
	)
}

// OnJobDequeued implements ext.JobDequeued.
func (e *Extension) OnJobDequeued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobDequeued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"queue", j.Queue,
		"session_id", j.SessionID.String(),
		"latency_ms", j.Latency().Milliseconds(),
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"queue", j.Queue,
		"session_id", j.SessionID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"queue", j.Queue,
		"session_id", j.SessionID.String(),
	)
}

// OnMessageRejected implements ext.MessageRejected.
func (e *Extension) OnMessageRejected(ctx context.Context, queue string, raw []byte, decodeErr error) error {
	return e.record(ctx, ActionMessageRejected, SeverityWarning, OutcomeFailure,
		ResourceQueue, queue, CategoryJob, decodeErr,
		"bytes", len(raw),
	)
}

// ── Session hooks ───────────────────────────────────

// OnShutdownRequested implements ext.ShutdownRequested.
func (e *Extension) OnShutdownRequested(ctx context.Context, session id.SessionID, queue string, inFlight int) error {
	return e.record(ctx, ActionShutdownRequested, SeverityInfo, OutcomeSuccess,
		ResourceSession, session.String(), CategorySession, nil,
		"queue", queue,
		"in_flight", inFlight,
	)
}

// OnSessionStopped implements ext.SessionStopped. A forced stop is a
// critical failure: acknowledged work may have been lost.
func (e *Extension) OnSessionStopped(ctx context.Context, session id.SessionID, queue string, forced bool) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	var err error
	if forced {
		severity, outcome = SeverityCritical, OutcomeFailure
		err = fmt.Errorf("forced shutdown")
	}
	return e.record(ctx, ActionSessionStopped, severity, outcome,
		ResourceSession, session.String(), CategorySession, err,
		"queue", queue,
		"forced", forced,
	)
}

func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
