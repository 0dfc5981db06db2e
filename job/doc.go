// Package job defines the dequeued job and the handler shapes a consumer
// session can run.
//
// # Handler shapes
//
// The completion model is chosen by type, never by inspecting a function:
//
//   - [FireFunc] runs and is forgotten. On shutdown the session waits a
//     fixed grace period for handlers still running.
//   - [AckFunc] receives a [Done] callback and may complete later, from
//     another goroutine. Shutdown waits for every outstanding call.
//   - [TaskFunc] completes when it returns; a non-nil error fails the job.
//
// Typed payloads go through [Task] or [Fire], or through a [Definition]
// registered with [RegisterDefinition]:
//
//	var SendEmail = job.NewDefinition("emailQueue",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(in.To, in.Subject, in.Body)
//	    },
//	)
//
//	job.RegisterDefinition(registry, SendEmail)
package job
