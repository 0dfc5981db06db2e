package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/qmin/job"
)

// Timeout returns middleware that bounds the handler call by j.Timeout.
// A zero Timeout leaves the context untouched.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		logger.Debug("job timeout set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", j.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()
		return next(ctx)
	}
}
