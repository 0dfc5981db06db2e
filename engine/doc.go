// Package engine wires qmin together: the store, the envelope codec, the
// extension registry, the middleware stack and the handler registry. It is
// the producer API and the factory for consumer sessions.
//
// # Building an Engine
//
//	eng, err := engine.Open(cfg,
//	    engine.WithLogger(logger),
//	    engine.WithExtension(auditExt),
//	    engine.WithQueueConfig(queue.Config{Name: "emails", MaxInFlight: 10}),
//	)
//
// Or over an existing store, for tests:
//
//	eng, err := engine.New(memory.New())
//
// # Producing
//
//	env, err := engine.Enqueue(ctx, eng, "emails", Email{To: "a@example.com"})
//
// # Consuming
//
// Listen consumes one queue and blocks until shutdown:
//
//	err := eng.Listen(ctx, "emails", job.Task(func(ctx context.Context, e Email) error {
//	    return mailer.Send(ctx, e)
//	}))
//
// ListenAll runs one session per registered queue:
//
//	eng.Handle("emails", emailHandler)
//	engine.Register(eng, ResizeImage)
//	err := eng.ListenAll(ctx)
//
// Every session gets recover, tracing, metrics and logging middleware plus
// whatever [WithMiddleware] adds.
//
// # Watching
//
//	b := eng.NewBroker()
//	sub := b.Subscribe("dashboard", stream.TypeTopic(stream.EventFailed))
//	go eng.Watch(ctx, b)
//	for evt := range sub.C() { ... }
package engine
