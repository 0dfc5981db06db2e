// Package qmin provides a minimal durable job-queue client on top of Redis
// lists and pub/sub. Producers push serialized envelopes onto named queues;
// consumer sessions pop them with a bounded blocking pop and run a handler,
// optionally tracking completion so a process can shut down without losing
// work in flight.
//
// qmin is a library, not a broker. There is no routing, priority or
// delivery protocol beyond the atomic BLPOP hand-off Redis already offers.
//
// # Quick Start
//
//	eng, err := engine.Open(qmin.DefaultConfig())
//	if err != nil { ... }
//	defer eng.Close()
//
//	// Producer side.
//	_, err = engine.Enqueue(ctx, eng, "emails", Email{To: "a@example.com"})
//
//	// Consumer side: blocks until SIGINT/SIGTERM and a clean drain.
//	err = eng.Listen(ctx, "emails", job.TaskFunc(func(ctx context.Context, j *job.Job) error {
//	    var e Email
//	    return j.Decode(&e)
//	}))
//
// # Handler shapes
//
// The handler type decides how a session treats completion:
//
//   - job.FireFunc runs in "no-guarantees" mode. Nothing is tracked and
//     shutdown only waits a short grace period.
//   - job.AckFunc receives a job.Done callback. The item counts as in flight
//     until Done is called, and shutdown drains until every item is done.
//   - job.TaskFunc completes when it returns.
//
// # Architecture
//
// The store package defines the list/hash/set/pub-sub primitives, with
// Redis (store/redis) and in-memory (store/memory) backends. The worker
// package owns the consumer loop, the completion tracker and the shutdown
// coordinator. The engine package wires producer and sessions together.
//
// Lifecycle events (enqueued, dequeued, processed, failed) are published on
// pub/sub topics. The stream package follows them live for monitoring, and
// the audit_hook extension records them in-process.
package qmin
