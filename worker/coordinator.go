package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/qmin/job"
)

// State is the shutdown state of a session.
type State int

const (
	// StateIdle means Listen has not been called.
	StateIdle State = iota
	StateRunning
	StateShutdownRequested
	StateDraining
	StateExited
	StateForceExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShutdownRequested:
		return "shutdown-requested"
	case StateDraining:
		return "draining"
	case StateExited:
		return "exited"
	case StateForceExited:
		return "force-exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is absorbing.
func (s State) Terminal() bool {
	return s == StateExited || s == StateForceExited
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Mode job.Mode

	ForceExitTimeout time.Duration
	GracePeriod      time.Duration
	ForceExitDelay   time.Duration

	// InFlight reads the tracker. Required in acknowledge mode.
	InFlight func() int

	// OnShutdownRequested and OnDrainProgress are optional notifications.
	// They run outside the coordinator lock.
	OnShutdownRequested func(inFlight int)
	OnDrainProgress     func(remaining int)
}

// Coordinator drives one session from Running to a terminal state.
//
//	Running → ShutdownRequested → Draining → Exited
//	ShutdownRequested | Draining → ForceExited
//
// The first Signal stops popping and arms the force-exit timer. Once the
// loop has stopped, an acknowledge-mode session drains until the tracker
// reaches zero and a fire-and-forget session waits the grace period. A
// second Signal forces exit after ForceExitDelay.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	loopStopped bool
	forceTimer  *time.Timer
	delayTimer  *time.Timer
	graceTimer  *time.Timer

	stop     context.Context
	stopFunc context.CancelFunc
	done     chan struct{}
}

// NewCoordinator returns a coordinator in StateRunning.
func NewCoordinator(cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if cfg.InFlight == nil {
		cfg.InFlight = func() int { return 0 }
	}
	stop, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		state:    StateRunning,
		stop:     stop,
		stopFunc: cancel,
		done:     make(chan struct{}),
	}
}

// Stopping returns a context cancelled by the first Signal. The loop
// checks it before each pop and uses it for every wait between pops.
func (c *Coordinator) Stopping() context.Context { return c.stop }

// Done is closed once a terminal state is reached.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Signal records a termination request. reason is logged.
func (c *Coordinator) Signal(reason string) {
	c.mu.Lock()

	switch c.state {
	case StateRunning:
		c.state = StateShutdownRequested
		c.stopFunc()
		c.forceTimer = time.AfterFunc(c.cfg.ForceExitTimeout, func() {
			c.forceExit(fmt.Sprintf("graceful shutdown exceeded %s", c.cfg.ForceExitTimeout))
		})
		inFlight := c.cfg.InFlight()
		c.mu.Unlock()

		c.logger.Info("attempting clean shutdown; to force shutdown, signal again",
			slog.String("reason", reason),
			slog.Int("in_flight", inFlight),
			slog.Duration("force_exit_timeout", c.cfg.ForceExitTimeout),
		)
		if c.cfg.OnShutdownRequested != nil {
			c.cfg.OnShutdownRequested(inFlight)
		}

	case StateShutdownRequested, StateDraining:
		if c.delayTimer == nil {
			c.delayTimer = time.AfterFunc(c.cfg.ForceExitDelay, func() {
				c.forceExit("second termination signal")
			})
		}
		c.mu.Unlock()
		c.logger.Warn("forcing shutdown now", slog.String("reason", reason))

	default:
		c.mu.Unlock()
	}
}

// LoopStopped tells the coordinator the consumer loop will not pop again.
func (c *Coordinator) LoopStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() || c.loopStopped {
		return
	}
	c.loopStopped = true
	c.state = StateDraining

	if c.cfg.Mode == job.ModeFireAndForget {
		c.logger.Warn("session ran in no-guarantees mode; giving running handlers time to complete",
			slog.Duration("grace_period", c.cfg.GracePeriod),
		)
		c.graceTimer = time.AfterFunc(c.cfg.GracePeriod, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.state.Terminal() {
				return
			}
			c.logger.Warn("exiting; completion of fire-and-forget handlers was not guaranteed")
			c.finishLocked(StateExited)
		})
		return
	}

	if n := c.cfg.InFlight(); n > 0 {
		c.logger.Info("waiting for pending jobs to complete", slog.Int("pending", n))
		return
	}
	c.logger.Info("no pending jobs, exiting")
	c.finishLocked(StateExited)
}

// JobEnded is called by the tracker after each completion.
func (c *Coordinator) JobEnded(remaining int) {
	c.mu.Lock()
	switch {
	case c.state == StateDraining && remaining == 0:
		c.logger.Info("pending jobs completed, shutting down")
		c.finishLocked(StateExited)
		c.mu.Unlock()
		return
	case c.state != StateShutdownRequested && c.state != StateDraining:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if remaining == 0 {
		// The loop has not stopped yet; LoopStopped will see zero.
		return
	}
	c.logger.Info("waiting for pending jobs to complete", slog.Int("pending", remaining))
	if c.cfg.OnDrainProgress != nil {
		c.cfg.OnDrainProgress(remaining)
	}
}

func (c *Coordinator) forceExit(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return
	}
	c.logger.Error("forced shutdown; in-flight work may be lost",
		slog.String("reason", reason),
		slog.Int("in_flight", c.cfg.InFlight()),
	)
	c.finishLocked(StateForceExited)
}

// finishLocked enters a terminal state. c.mu must be held.
func (c *Coordinator) finishLocked(s State) {
	c.state = s
	for _, t := range []*time.Timer{c.forceTimer, c.delayTimer, c.graceTimer} {
		if t != nil {
			t.Stop()
		}
	}
	c.stopFunc()
	close(c.done)
}
