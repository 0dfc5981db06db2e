package job

import "context"

// Done reports that an acknowledged job has finished. A non-nil error marks
// the job failed. Only the first call counts.
type Done func(err error)

// Handler processes dequeued jobs.
//
// Invoke must not block waiting for Done. For ModeAcknowledge handlers the
// job stays in flight until done is called; an error returned from Invoke
// ends it as failed. Custom acknowledged handlers are assumed to complete
// after Invoke returns, so HandlerTimeout does not apply to them.
type Handler interface {
	Mode() Mode
	Invoke(ctx context.Context, j *Job, done Done) error
}

// FireFunc is a fire-and-forget handler. Its return is not awaited for
// shutdown beyond the grace period.
type FireFunc func(ctx context.Context, j *Job)

// Mode implements Handler.
func (FireFunc) Mode() Mode { return ModeFireAndForget }

// Invoke implements Handler.
func (f FireFunc) Invoke(ctx context.Context, j *Job, _ Done) error {
	f(ctx, j)
	return nil
}

// AckFunc is a handler that completes by calling done, possibly after it
// returns.
type AckFunc func(ctx context.Context, j *Job, done Done)

// Mode implements Handler.
func (AckFunc) Mode() Mode { return ModeAcknowledge }

// Invoke implements Handler.
func (f AckFunc) Invoke(ctx context.Context, j *Job, done Done) error {
	f(ctx, j, done)
	return nil
}

// TaskFunc is an acknowledged handler that completes when it returns.
type TaskFunc func(ctx context.Context, j *Job) error

// Mode implements Handler.
func (TaskFunc) Mode() Mode { return ModeAcknowledge }

// Invoke implements Handler.
func (f TaskFunc) Invoke(ctx context.Context, j *Job, done Done) error {
	err := f(ctx, j)
	done(err)
	return err
}

// Deferred reports whether h may complete through its Done callback after
// Invoke returns. Such handlers get no per-call timeout, since the
// deadline would cancel their context as soon as Invoke returned. Every
// acknowledged handler except TaskFunc is treated as deferred.
func Deferred(h Handler) bool {
	if _, ok := h.(TaskFunc); ok {
		return false
	}
	return h.Mode() == ModeAcknowledge
}

// IsNil reports whether h is nil or wraps a nil function.
func IsNil(h Handler) bool {
	switch f := h.(type) {
	case nil:
		return true
	case FireFunc:
		return f == nil
	case AckFunc:
		return f == nil
	case TaskFunc:
		return f == nil
	}
	return false
}
