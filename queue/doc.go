// Package queue throttles the consumer loop's pops.
//
// A [Limiter] combines a token-bucket rate limiter (golang.org/x/time/rate)
// with an in-flight cap (golang.org/x/sync/semaphore). The loop calls Wait
// before each blocking pop and Release once the popped item is handled:
//
//	if err := l.Wait(ctx); err != nil {
//	    return err
//	}
//	item, err := popper.BlockingPop(...)
//	if item == nil {
//	    l.Release()
//	}
//
// A [Manager] holds a default [Config] plus per-queue overrides:
//
//	queue.NewManager(queue.Config{MaxInFlight: 64},
//	    queue.Config{Name: "bulk", RateLimit: 5, RateBurst: 10},
//	)
//
// Without limits the consumer runs handlers with unbounded concurrency.
package queue
