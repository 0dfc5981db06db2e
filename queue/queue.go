package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config defines pop throttling for one queue.
type Config struct {
	// Name is the queue the config applies to. The Manager ignores it for
	// its default config.
	Name string

	// MaxInFlight caps how many handlers from this queue may run at once
	// in one session. Zero means unbounded.
	MaxInFlight int

	// RateLimit is the maximum sustained pops per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// Limiter gates pops for one session. Wait blocks until both a rate token
// and an in-flight slot are available; Release frees the slot. A nil
// *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted

	mu     sync.Mutex
	active int
}

// NewLimiter returns a Limiter for cfg, or nil when cfg sets no limits.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RateLimit <= 0 && cfg.MaxInFlight <= 0 {
		return nil
	}
	l := &Limiter{}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxInFlight > 0 {
		l.slots = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	}
	return l
}

// Wait blocks until a pop is allowed or ctx is done. On success the caller
// holds one slot and MUST call Release once the popped item is handled, or
// right away when the pop returned nothing.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if l.slots != nil {
		if err := l.slots.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			if l.slots != nil {
				l.slots.Release(1)
			}
			return err
		}
	}

	l.mu.Lock()
	l.active++
	l.mu.Unlock()
	return nil
}

// Release frees a slot taken by Wait. Extra calls are ignored.
func (l *Limiter) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == 0 {
		return
	}
	l.active--
	if l.slots != nil {
		l.slots.Release(1)
	}
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Manager hands out limiters per queue. Queues without their own Config
// use the default. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	defaults Config
	queues   map[string]Config
}

// NewManager creates a Manager with a default config and per-queue
// overrides.
func NewManager(defaults Config, overrides ...Config) *Manager {
	m := &Manager{
		defaults: defaults,
		queues:   make(map[string]Config, len(overrides)),
	}
	for _, cfg := range overrides {
		m.queues[cfg.Name] = cfg
	}
	return m
}

// SetQueueConfig replaces (or creates) the config of one queue. Sessions
// already running keep their limiter.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[cfg.Name] = cfg
}

// Config returns the effective config for queue.
func (m *Manager) Config(queue string) Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.queues[queue]; ok {
		return cfg
	}
	cfg := m.defaults
	cfg.Name = queue
	return cfg
}

// Limiter returns a fresh limiter for a session on queue, or nil when the
// queue is unlimited.
func (m *Manager) Limiter(queue string) *Limiter {
	return NewLimiter(m.Config(queue))
}
