package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/qmin/job"
)

// Logging returns middleware that logs each handler call at debug level
// and failures at error level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Debug("job started",
			slog.String("queue", j.Queue),
			slog.String("job_id", j.ID.String()),
			slog.Int("producer_pid", j.Envelope.ProducerID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("queue", j.Queue),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return err
		}

		logger.Debug("job returned",
			slog.String("queue", j.Queue),
			slog.String("job_id", j.ID.String()),
			slog.Duration("elapsed", elapsed),
		)
		return nil
	}
}
