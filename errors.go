package qmin

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the kind shared by every caller-misuse error. These
// are returned synchronously and are never retried.
var ErrConfiguration = errors.New("qmin: configuration error")

var (
	// Configuration errors.
	ErrEmptyQueueName   = fmt.Errorf("%w: queue name must be provided, eg. \"emailQueue\"", ErrConfiguration)
	ErrMissingHandler   = fmt.Errorf("%w: a handler must be provided to listen", ErrConfiguration)
	ErrAlreadyListening = fmt.Errorf("%w: session is already listening; create another session to listen to another queue", ErrConfiguration)
	ErrNoStore          = fmt.Errorf("%w: no store configured", ErrConfiguration)
	ErrUnknownCodec     = fmt.Errorf("%w: unknown envelope codec", ErrConfiguration)
	ErrWatchUnsupported = fmt.Errorf("%w: store cannot watch lifecycle topics", ErrConfiguration)

	// Shutdown errors.
	ErrForcedShutdown = errors.New("qmin: forced shutdown, in-flight work may be lost")
)

// IsConfigurationError reports whether err is caller misuse.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
