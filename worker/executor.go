package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/job"
	"github.com/xraph/qmin/middleware"
	"github.com/xraph/qmin/store"
)

// Executor runs one job through the middleware chain and its handler, then
// records the outcome: completed metadata and the processed topic for
// acknowledged jobs, the failed topic for failures, and lifecycle hooks.
type Executor struct {
	store      store.Store
	keys       store.Keys
	extensions *ext.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor. Recover is always the outermost
// middleware, so a panicking handler cannot take the process down.
func NewExecutor(
	st store.Store,
	keys store.Keys,
	extensions *ext.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	chain := make([]middleware.Middleware, 0, len(mws)+2)
	chain = append(chain, middleware.Recover(logger))
	chain = append(chain, mws...)
	chain = append(chain, middleware.Timeout(logger))

	return &Executor{
		store:      st,
		keys:       keys,
		extensions: extensions,
		mw:         middleware.Chain(chain...),
		logger:     logger,
	}
}

// Execute runs h for j and blocks until Invoke returns. finish is called
// exactly once: when an acknowledged job completes, which may be after
// Execute returned, or when a fire-and-forget handler returns.
func (e *Executor) Execute(ctx context.Context, j *job.Job, h job.Handler, finish func()) {
	start := time.Now()
	mode := h.Mode()

	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			e.complete(ctx, j, mode, time.Since(start), err)
			finish()
		})
	}

	err := e.mw(ctx, j, func(ctx context.Context) error {
		return h.Invoke(ctx, j, done)
	})

	// Fire-and-forget jobs finish when Invoke returns. A failed Invoke
	// ends an acknowledged job too, so a crashed handler cannot hold up
	// a drain.
	if mode == job.ModeFireAndForget || err != nil {
		done(err)
	}
}

func (e *Executor) complete(ctx context.Context, j *job.Job, mode job.Mode, elapsed time.Duration, err error) {
	if err != nil {
		e.logger.Error("job failed",
			slog.String("queue", j.Queue),
			slog.String("job_id", j.ID.String()),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		if pubErr := e.store.Publish(ctx, e.keys.Topic(store.TopicFailed), j.Raw); pubErr != nil {
			e.logBookkeepingError("publish failed", j, pubErr)
		}
		e.extensions.EmitJobFailed(ctx, j, err)
		return
	}

	if mode != job.ModeAcknowledge {
		return
	}

	if metaErr := e.store.SetMeta(ctx, e.keys.Meta(j.Queue), store.FieldCompleted, time.Now().UnixMilli()); metaErr != nil {
		e.logBookkeepingError("set completed", j, metaErr)
	}
	if pubErr := e.store.Publish(ctx, e.keys.Topic(store.TopicProcessed), j.Raw); pubErr != nil {
		e.logBookkeepingError("publish processed", j, pubErr)
	}
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
}

func (e *Executor) logBookkeepingError(op string, j *job.Job, err error) {
	e.logger.Warn("bookkeeping write failed",
		slog.String("op", op),
		slog.String("queue", j.Queue),
		slog.String("job_id", j.ID.String()),
		slog.String("error", err.Error()),
	)
}
