package worker

import (
	"log/slog"
	"sync"
)

// Tracker counts acknowledged jobs that have started but not completed.
// Fire-and-forget jobs are never tracked.
type Tracker struct {
	mu       sync.Mutex
	inFlight int

	// onEnd runs after every decrement, outside the tracker lock.
	onEnd  func(remaining int)
	logger *slog.Logger
}

// NewTracker returns a tracker that calls onEnd after each End.
func NewTracker(logger *slog.Logger, onEnd func(remaining int)) *Tracker {
	return &Tracker{onEnd: onEnd, logger: logger}
}

// Begin records one more job in flight.
func (t *Tracker) Begin() {
	t.mu.Lock()
	t.inFlight++
	t.mu.Unlock()
}

// End records a completion. An End without a matching Begin is logged and
// ignored; the count never goes below zero.
func (t *Tracker) End() {
	t.mu.Lock()
	if t.inFlight == 0 {
		t.mu.Unlock()
		t.logger.Warn("completion without a matching start ignored")
		return
	}
	t.inFlight--
	remaining := t.inFlight
	t.mu.Unlock()

	if t.onEnd != nil {
		t.onEnd(remaining)
	}
}

// InFlight returns the number of jobs in flight.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}
