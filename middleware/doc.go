// Package middleware provides composable middleware around handler calls.
//
// A [Middleware] wraps the call that runs a job handler. Middleware are
// composed with [Chain]; the first one in the list is the outermost.
//
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] catches panics and converts them to errors
//   - [Logging] logs each call and its failures
//   - [Timeout] bounds the call by the job's Timeout
//   - [Tracing] wraps the call in an OpenTelemetry span
//   - [Metrics] records call duration and outcome counters
//
// Middleware sees the handler's Invoke call only. An acknowledgment handler
// may call Done after its Invoke returned; completion of such jobs is
// reported through the ext hooks instead.
package middleware
