package middleware

import (
	"context"

	"github.com/xraph/qmin/job"
)

// Handler is the terminal function that runs the job handler.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the job being handled, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
//
// For acknowledgment handlers next returns when Invoke returns, which may
// be before the handler calls Done.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
//	Chain(recover, tracing, logging) runs as recover → tracing → logging → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
