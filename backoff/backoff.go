// Package backoff paces a consumer loop after store errors. A session
// counts consecutive failed pops and waits Strategy.Delay(n) before the
// next attempt; the first successful pop resets the count.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Strategy computes the pause after the n-th consecutive failure
// (1-indexed).
type Strategy interface {
	Delay(failures int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay on each failure.
// Delay = min(Initial * 2^(n-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(n-1), capped at Max.
func (e *Exponential) Delay(failures int) time.Duration {
	return exponential(e.Initial, e.Max, failures)
}

// ExponentialWithJitter applies full jitter to an exponential base so
// sessions that lost the same Redis do not reconnect in lockstep.
// Delay = random value in [0, min(Initial * 2^(n-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(n-1), Max)].
func (e *ExponentialWithJitter) Delay(failures int) time.Duration {
	base := exponential(e.Initial, e.Max, failures)
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func exponential(initial, maxDelay time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(initial) * math.Pow(2, float64(n-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// DefaultStrategy returns the pacing used by sessions: full jitter from
// 100ms up to 5s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 5*time.Second)
}

// Pacer counts consecutive failures against a Strategy. It is safe for
// concurrent use.
type Pacer struct {
	strategy Strategy

	mu       sync.Mutex
	failures int
}

// NewPacer returns a Pacer over s, or over DefaultStrategy when s is nil.
func NewPacer(s Strategy) *Pacer {
	if s == nil {
		s = DefaultStrategy()
	}
	return &Pacer{strategy: s}
}

// Failure records a failure and returns how long to pause.
func (p *Pacer) Failure() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	return p.strategy.Delay(p.failures)
}

// Reset clears the failure count after a success.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
}

// Failures returns the current count of consecutive failures.
func (p *Pacer) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Sleep pauses for d or until ctx is done. It reports whether the full
// pause elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
