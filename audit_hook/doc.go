// Package audithook is a qmin extension that turns lifecycle events into
// structured audit records.
//
// Every hook produces an [AuditEvent] handed to a [Recorder]. Failures and
// forced shutdowns are recorded as critical, rejected messages as warnings,
// everything else as info.
//
//	eng, err := engine.Open(cfg, engine.WithExtension(
//	    audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	        return auditLog.Encode(evt)
//	    })),
//	))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionSessionStopped,
//	    ),
//	)
package audithook
