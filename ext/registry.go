package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register is not safe for concurrent use; register every extension
// before the first session starts. Emit methods are safe for concurrent
// use once registration is over.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued       []entry[JobEnqueued]
	jobDequeued       []entry[JobDequeued]
	jobCompleted      []entry[JobCompleted]
	jobFailed         []entry[JobFailed]
	messageRejected   []entry[MessageRejected]
	shutdownRequested []entry[ShutdownRequested]
	drainProgress     []entry[DrainProgress]
	sessionStopped    []entry[SessionStopped]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, entry[JobEnqueued]{name, h})
	}
	if h, ok := e.(JobDequeued); ok {
		r.jobDequeued = append(r.jobDequeued, entry[JobDequeued]{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, entry[JobCompleted]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(MessageRejected); ok {
		r.messageRejected = append(r.messageRejected, entry[MessageRejected]{name, h})
	}
	if h, ok := e.(ShutdownRequested); ok {
		r.shutdownRequested = append(r.shutdownRequested, entry[ShutdownRequested]{name, h})
	}
	if h, ok := e.(DrainProgress); ok {
		r.drainProgress = append(r.drainProgress, entry[DrainProgress]{name, h})
	}
	if h, ok := e.(SessionStopped); ok {
		r.sessionStopped = append(r.sessionStopped, entry[SessionStopped]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	return r.extensions
}

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, env *envelope.Envelope) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, env); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobDequeued notifies all extensions that implement JobDequeued.
func (r *Registry) EmitJobDequeued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobDequeued {
		if err := e.hook.OnJobDequeued(ctx, j); err != nil {
			r.logHookError("OnJobDequeued", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitMessageRejected notifies all extensions that implement MessageRejected.
func (r *Registry) EmitMessageRejected(ctx context.Context, queue string, raw []byte, decodeErr error) {
	for _, e := range r.messageRejected {
		if err := e.hook.OnMessageRejected(ctx, queue, raw, decodeErr); err != nil {
			r.logHookError("OnMessageRejected", e.name, err)
		}
	}
}

// EmitShutdownRequested notifies all extensions that implement ShutdownRequested.
func (r *Registry) EmitShutdownRequested(ctx context.Context, session id.SessionID, queue string, inFlight int) {
	for _, e := range r.shutdownRequested {
		if err := e.hook.OnShutdownRequested(ctx, session, queue, inFlight); err != nil {
			r.logHookError("OnShutdownRequested", e.name, err)
		}
	}
}

// EmitDrainProgress notifies all extensions that implement DrainProgress.
func (r *Registry) EmitDrainProgress(ctx context.Context, session id.SessionID, queue string, remaining int) {
	for _, e := range r.drainProgress {
		if err := e.hook.OnDrainProgress(ctx, session, queue, remaining); err != nil {
			r.logHookError("OnDrainProgress", e.name, err)
		}
	}
}

// EmitSessionStopped notifies all extensions that implement SessionStopped.
func (r *Registry) EmitSessionStopped(ctx context.Context, session id.SessionID, queue string, forced bool) {
	for _, e := range r.sessionStopped {
		if err := e.hook.OnSessionStopped(ctx, session, queue, forced); err != nil {
			r.logHookError("OnSessionStopped", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
