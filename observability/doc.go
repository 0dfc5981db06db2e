// Package observability provides an OpenTelemetry metrics extension for
// qmin. MetricsExtension implements the lifecycle hooks to count enqueues,
// dequeues, completions, failures, rejected items and session shutdowns,
// and to record queue latency.
//
// For per-call tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
