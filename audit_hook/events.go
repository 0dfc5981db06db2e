package audithook

// Audit event actions, one per lifecycle hook.
const (
	ActionJobEnqueued       = "job.enqueued"
	ActionJobDequeued       = "job.dequeued"
	ActionJobCompleted      = "job.completed"
	ActionJobFailed         = "job.failed"
	ActionMessageRejected   = "message.rejected"
	ActionShutdownRequested = "session.shutdown_requested"
	ActionSessionStopped    = "session.stopped"
)

// Audit event categories.
const (
	CategoryJob     = "qmin.job"
	CategorySession = "qmin.session"
)

// Resource types.
const (
	ResourceJob     = "job"
	ResourceQueue   = "queue"
	ResourceSession = "session"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobDequeued,
		ActionJobCompleted,
		ActionJobFailed,
		ActionMessageRejected,
		ActionShutdownRequested,
		ActionSessionStopped,
	}
}
