package job

import "context"

// Definition is a typed handler bound to a queue. T is the payload type
// and must be decodable by the envelope codec in use.
type Definition[T any] struct {
	// Queue is the queue this definition consumes.
	Queue string

	// Handler processes the decoded payload.
	Handler func(ctx context.Context, payload T) error
}

// NewDefinition creates a typed definition for queue.
func NewDefinition[T any](queue string, handler func(ctx context.Context, payload T) error) *Definition[T] {
	return &Definition[T]{Queue: queue, Handler: handler}
}

// Task adapts a typed function to an acknowledged handler. The payload is
// decoded before fn runs; a decode error fails the job without calling fn.
func Task[T any](fn func(ctx context.Context, payload T) error) TaskFunc {
	return func(ctx context.Context, j *Job) error {
		var v T
		if len(j.Payload()) > 0 {
			if err := j.Decode(&v); err != nil {
				return err
			}
		}
		return fn(ctx, v)
	}
}

// Fire adapts a typed function to a fire-and-forget handler. Payloads that
// fail to decode are passed to onErr when it is non-nil.
func Fire[T any](fn func(ctx context.Context, payload T), onErr func(*Job, error)) FireFunc {
	return func(ctx context.Context, j *Job) {
		var v T
		if len(j.Payload()) > 0 {
			if err := j.Decode(&v); err != nil {
				if onErr != nil {
					onErr(j, err)
				}
				return
			}
		}
		fn(ctx, v)
	}
}
