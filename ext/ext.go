// Package ext defines the extension system for qmin.
// Extensions are notified of lifecycle events (envelope enqueued, job
// completed or failed, session draining) and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Producer hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after an envelope was pushed onto its queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, env *envelope.Envelope) error
}

// ──────────────────────────────────────────────────
// Consumer hooks
// ──────────────────────────────────────────────────

// JobDequeued is called when a session popped and decoded an envelope,
// before the handler runs.
type JobDequeued interface {
	OnJobDequeued(ctx context.Context, j *job.Job) error
}

// JobCompleted is called when an acknowledged job completes without error.
// Fire-and-forget jobs never complete from the consumer's point of view.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a handler returned an error, panicked, or
// acknowledged with an error.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// MessageRejected is called when a popped item could not be decoded. The
// item is already removed from the queue.
type MessageRejected interface {
	OnMessageRejected(ctx context.Context, queue string, raw []byte, err error) error
}

// ──────────────────────────────────────────────────
// Shutdown hooks
// ──────────────────────────────────────────────────

// ShutdownRequested is called on the first termination signal of a session.
type ShutdownRequested interface {
	OnShutdownRequested(ctx context.Context, session id.SessionID, queue string, inFlight int) error
}

// DrainProgress is called each time an acknowledged job completes while a
// session is draining.
type DrainProgress interface {
	OnDrainProgress(ctx context.Context, session id.SessionID, queue string, remaining int) error
}

// SessionStopped is called when a session reaches a terminal state.
type SessionStopped interface {
	OnSessionStopped(ctx context.Context, session id.SessionID, queue string, forced bool) error
}

// Shutdown is called when the engine closes.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
