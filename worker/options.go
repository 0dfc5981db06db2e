package worker

import (
	"log/slog"

	"github.com/xraph/qmin/backoff"
	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/middleware"
	"github.com/xraph/qmin/queue"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithExtensions sets the extension registry notified of lifecycle events.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Session) { s.extensions = r }
}

// WithMiddleware sets the middleware run around each handler call, after
// panic recovery.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Session) { s.middleware = mws }
}

// WithCodec overrides the envelope codec selected by Config.Codec.
func WithCodec(c envelope.Codec) Option {
	return func(s *Session) { s.codec = c }
}

// WithBackoff sets the pause strategy after failed pops.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *Session) { s.backoff = b }
}

// WithLimiter throttles pops. It overrides Config.PopRate and
// Config.MaxInFlight.
func WithLimiter(l *queue.Limiter) Option {
	return func(s *Session) {
		s.limiter = l
		s.limiterSet = true
	}
}

// WithExitFunc sets a function called with the exit code (0 after a clean
// shutdown, 1 after a forced one) right before Listen returns. Pass os.Exit
// to terminate the process the way a standalone worker would.
func WithExitFunc(fn func(code int)) Option {
	return func(s *Session) { s.exitFunc = fn }
}

// WithSignals overrides Config.HandleSignals.
func WithSignals(enabled bool) Option {
	return func(s *Session) { s.handleSignals = enabled }
}
