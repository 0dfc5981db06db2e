package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/qmin/job"
)

// Recover returns middleware that turns a handler panic into an error and
// logs it with the stack. A panicking handler never takes the consumer
// loop down.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("queue", j.Queue),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in handler for queue %s: %v", j.Queue, r)
			}
		}()
		return next(ctx)
	}
}
