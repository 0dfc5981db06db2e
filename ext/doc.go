// Package ext defines the extension system for qmin.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs or alerting. Each lifecycle hook is
// a separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s on %s completed in %s", j.ID, j.Queue, elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: an envelope was pushed by a producer
//   - [JobDequeued]: a session popped and decoded an envelope
//   - [JobCompleted]: an acknowledged job completed
//   - [JobFailed]: a handler failed or panicked
//   - [MessageRejected]: a popped item could not be decoded
//   - [ShutdownRequested]: a session received its first termination signal
//   - [DrainProgress]: a draining session has fewer jobs outstanding
//   - [SessionStopped]: a session reached a terminal state
//   - [Shutdown]: the engine is closing
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the consumer loop.
package ext
