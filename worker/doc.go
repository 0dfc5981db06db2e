// Package worker implements the consumer side of qmin: a Session pops
// envelopes from one queue with a blocking pop, runs a handler for each and
// shuts down gracefully on SIGINT, SIGTERM or context cancellation.
//
// A Session is made of four parts:
//
//   - the loop, which pops with a bounded timeout so shutdown is noticed
//     within one pop interval;
//   - the [Executor], which runs the handler through the middleware chain
//     and records the outcome;
//   - the [Tracker], which counts acknowledged jobs still in flight;
//   - the [Coordinator], which owns the shutdown state machine and its
//     force-exit, grace and second-signal timers.
//
// Delivery is at most once. An item is removed from the queue by the pop
// itself and is lost if the process dies before the handler completes.
package worker
