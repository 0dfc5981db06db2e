package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/xraph/qmin"
	"github.com/xraph/qmin/backoff"
	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
	"github.com/xraph/qmin/middleware"
	"github.com/xraph/qmin/queue"
	"github.com/xraph/qmin/store"
)

// Session consumes one queue. It owns a blocking connection, a tracker and
// a shutdown coordinator. A Session listens at most once; run several
// sessions to consume several queues.
type Session struct {
	id     id.SessionID
	store  store.Store
	cfg    qmin.Config
	keys   store.Keys
	logger *slog.Logger

	codec         envelope.Codec
	extensions    *ext.Registry
	middleware    []middleware.Middleware
	backoff       backoff.Strategy
	limiter       *queue.Limiter
	limiterSet    bool
	exitFunc      func(code int)
	handleSignals bool

	mu        sync.Mutex
	listening bool
	queue     string
	tracker   *Tracker
	coord     *Coordinator
}

// NewSession creates a session over st. cfg is validated; the codec is
// resolved from cfg.Codec unless WithCodec is given.
func NewSession(st store.Store, cfg qmin.Config, opts ...Option) (*Session, error) {
	if st == nil {
		return nil, qmin.ErrNoStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:            id.NewSessionID(),
		store:         st,
		cfg:           cfg,
		keys:          store.NewKeys(cfg.Namespace),
		logger:        slog.Default(),
		handleSignals: cfg.HandleSignals,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.codec == nil {
		codec, err := envelope.GetCodec(cfg.Codec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", qmin.ErrUnknownCodec, err)
		}
		s.codec = codec
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	if !s.limiterSet {
		s.limiter = queue.NewLimiter(queue.Config{
			MaxInFlight: cfg.MaxInFlight,
			RateLimit:   cfg.PopRate,
			RateBurst:   cfg.PopBurst,
		})
	}
	s.logger = s.logger.With(slog.String("session_id", s.id.String()))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() id.SessionID { return s.id }

// Queue returns the queue being consumed, or "" before Listen.
func (s *Session) Queue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// InFlight returns the number of acknowledged jobs not yet completed.
func (s *Session) InFlight() int {
	s.mu.Lock()
	t := s.tracker
	s.mu.Unlock()
	if t == nil {
		return 0
	}
	return t.InFlight()
}

// State returns the shutdown state.
func (s *Session) State() State {
	s.mu.Lock()
	c := s.coord
	s.mu.Unlock()
	if c == nil {
		return StateIdle
	}
	return c.State()
}

// Interrupt acts like a termination signal delivered to this session only.
// It is a no-op before Listen.
func (s *Session) Interrupt() {
	s.mu.Lock()
	c := s.coord
	s.mu.Unlock()
	if c != nil {
		c.Signal("interrupt")
	}
}

// Listen pops envelopes from queue and runs h for each until shutdown.
//
// Configuration errors are returned immediately. Otherwise Listen blocks:
// it returns nil after a clean shutdown and qmin.ErrForcedShutdown when
// the force-exit timer or a second signal cut the shutdown short.
// Cancelling ctx counts as one termination signal; handlers never see
// that cancellation.
func (s *Session) Listen(ctx context.Context, queueName string, h job.Handler) error {
	if queueName == "" {
		return qmin.ErrEmptyQueueName
	}
	if job.IsNil(h) {
		return qmin.ErrMissingHandler
	}

	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return qmin.ErrAlreadyListening
	}
	popper, err := s.store.NewPopper()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("qmin: open blocking connection: %w", err)
	}
	defer popper.Close()

	logger := s.logger.With(slog.String("queue", queueName))
	mode := h.Mode()

	var coord *Coordinator
	tracker := NewTracker(logger, func(remaining int) { coord.JobEnded(remaining) })
	coord = NewCoordinator(CoordinatorConfig{
		Mode:             mode,
		ForceExitTimeout: s.cfg.ForceExitTimeout,
		GracePeriod:      s.cfg.GracePeriod,
		ForceExitDelay:   s.cfg.ForceExitDelay,
		InFlight:         tracker.InFlight,
		OnShutdownRequested: func(inFlight int) {
			s.extensions.EmitShutdownRequested(context.Background(), s.id, queueName, inFlight)
		},
		OnDrainProgress: func(remaining int) {
			s.extensions.EmitDrainProgress(context.Background(), s.id, queueName, remaining)
		},
	}, logger)

	s.listening = true
	s.queue = queueName
	s.tracker = tracker
	s.coord = coord
	s.mu.Unlock()

	if mode == job.ModeFireAndForget {
		logger.Warn("listening in no-guarantees mode: shutdown will not wait for handlers; use an acknowledging handler to fix this")
	}
	logger.Info("listening",
		slog.String("mode", mode.String()),
		slog.Duration("pop_timeout", s.cfg.PopTimeout),
	)

	s.watch(ctx, coord)

	r := &run{
		session:  s,
		queue:    queueName,
		handler:  h,
		popper:   popper,
		tracker:  tracker,
		coord:    coord,
		executor: NewExecutor(s.store, s.keys, s.extensions, logger, s.middleware...),
		pacer:    backoff.NewPacer(s.backoff),
		baseCtx:  context.WithoutCancel(ctx),
		logger:   logger,
	}
	go func() {
		r.loop()
		coord.LoopStopped()
	}()

	<-coord.Done()

	forced := coord.State() == StateForceExited
	s.extensions.EmitSessionStopped(context.Background(), s.id, queueName, forced)
	logger.Info("session stopped",
		slog.Bool("forced", forced),
		slog.Int("in_flight", tracker.InFlight()),
	)

	code := 0
	if forced {
		code = 1
	}
	if s.exitFunc != nil {
		s.exitFunc(code)
	}
	if forced {
		return qmin.ErrForcedShutdown
	}
	return nil
}

// watch turns SIGINT, SIGTERM and ctx cancellation into coordinator
// signals until the coordinator is done.
func (s *Session) watch(ctx context.Context, coord *Coordinator) {
	var sigCh chan os.Signal
	if s.handleSignals {
		sigCh = make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	go func() {
		if sigCh != nil {
			defer signal.Stop(sigCh)
		}
		ctxDone := ctx.Done()
		for {
			select {
			case sig := <-sigCh:
				coord.Signal(sig.String())
			case <-ctxDone:
				coord.Signal("context cancelled")
				ctxDone = nil
			case <-coord.Done():
				return
			}
		}
	}()
}

// run is the state of one Listen call.
type run struct {
	session  *Session
	queue    string
	handler  job.Handler
	popper   store.Popper
	tracker  *Tracker
	coord    *Coordinator
	executor *Executor
	pacer    *backoff.Pacer
	baseCtx  context.Context
	logger   *slog.Logger
}

// loop pops until shutdown is requested. The pop itself is never
// cancelled: an item the server has already removed is always handled.
func (r *run) loop() {
	s := r.session
	stop := r.coord.Stopping()
	key := s.keys.Queue(r.queue)

	for {
		if stop.Err() != nil {
			r.logger.Info("not popping again; shutdown requested")
			return
		}

		if err := s.limiter.Wait(stop); err != nil {
			continue
		}

		raw, err := r.popper.BlockingPop(context.Background(), key, s.cfg.PopTimeout)
		if err != nil {
			s.limiter.Release()
			delay := r.pacer.Failure()
			r.logger.Error("blocking pop failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", r.pacer.Failures()),
				slog.Duration("retry_in", delay),
			)
			backoff.Sleep(stop, delay)
			continue
		}
		r.pacer.Reset()

		if raw == nil {
			s.limiter.Release()
			continue
		}
		r.dispatch(raw)
	}
}

// dispatch records the dequeue, decodes the envelope and starts the
// handler on its own goroutine.
func (r *run) dispatch(raw []byte) {
	s := r.session
	ctx := r.baseCtx

	if err := s.store.SetMeta(ctx, s.keys.Meta(r.queue), store.FieldLastDequeued, time.Now().UnixMilli()); err != nil {
		r.logger.Warn("bookkeeping write failed", slog.String("op", "set lastDequeued"), slog.String("error", err.Error()))
	}
	if err := s.store.Publish(ctx, s.keys.Topic(store.TopicDequeued), raw); err != nil {
		r.logger.Warn("bookkeeping write failed", slog.String("op", "publish dequeued"), slog.String("error", err.Error()))
	}

	j, err := job.Parse(r.queue, raw, s.codec)
	if err != nil {
		s.limiter.Release()
		r.logger.Error("dropping item that could not be decoded",
			slog.Int("bytes", len(raw)),
			slog.String("error", err.Error()),
		)
		if pubErr := s.store.Publish(ctx, s.keys.Topic(store.TopicFailed), raw); pubErr != nil {
			r.logger.Warn("bookkeeping write failed", slog.String("op", "publish failed"), slog.String("error", pubErr.Error()))
		}
		s.extensions.EmitMessageRejected(ctx, r.queue, raw, err)
		return
	}
	j.SessionID = s.id
	if !job.Deferred(r.handler) {
		j.Timeout = s.cfg.HandlerTimeout
	}

	s.extensions.EmitJobDequeued(ctx, j)

	acknowledged := r.handler.Mode() == job.ModeAcknowledge
	if acknowledged {
		r.tracker.Begin()
	}
	finish := func() {
		s.limiter.Release()
		if acknowledged {
			r.tracker.End()
		}
	}

	go r.executor.Execute(ctx, j, r.handler, finish)
}
