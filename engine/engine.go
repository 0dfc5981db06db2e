package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/qmin"
	"github.com/xraph/qmin/backoff"
	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/ext"
	"github.com/xraph/qmin/job"
	mw "github.com/xraph/qmin/middleware"
	"github.com/xraph/qmin/observability"
	"github.com/xraph/qmin/queue"
	"github.com/xraph/qmin/store"
	redisstore "github.com/xraph/qmin/store/redis"
	"github.com/xraph/qmin/stream"
	"github.com/xraph/qmin/worker"
)

const instrumentationName = "github.com/xraph/qmin"

// Engine is the entry point of a qmin application.
type Engine struct {
	store     store.Store
	ownsStore bool
	cfg       qmin.Config
	keys      store.Keys
	codec     envelope.Codec
	logger    *slog.Logger

	extensions   *ext.Registry
	pendingExts  []ext.Extension
	registry     *job.Registry
	mws          []mw.Middleware
	bo           backoff.Strategy
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu       sync.Mutex
	sessions []*worker.Session
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg qmin.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by the engine and its sessions.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware adds middleware to every session's handler chain. It runs
// after the built-in tracing, metrics and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the pause strategy sessions use after a failed pop.
// If not set, backoff.DefaultStrategy() is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithQueueConfig sets per-queue pop rate and in-flight limits. Queues not
// listed use the limits in qmin.Config.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.queueConfigs = append(eng.queueConfigs, configs...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension. If not set, the global
// otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine over st.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, qmin.ErrNoStore
	}

	eng := &Engine{
		store:    st,
		cfg:      qmin.DefaultConfig(),
		logger:   slog.Default(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := envelope.GetCodec(eng.cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", qmin.ErrUnknownCodec, err)
	}
	eng.codec = codec
	eng.keys = store.NewKeys(eng.cfg.Namespace)

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.queueManager = queue.NewManager(queue.Config{
		MaxInFlight: eng.cfg.MaxInFlight,
		RateLimit:   eng.cfg.PopRate,
		RateBurst:   eng.cfg.PopBurst,
	}, eng.queueConfigs...)

	eng.extensions = ext.NewRegistry(eng.logger)
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}
	eng.pendingExts = nil

	return eng, nil
}

// Open connects to the Redis server described by cfg and creates an Engine
// that owns the connection. Close releases it.
func Open(cfg qmin.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Options are applied twice: once here for the logger, once by New.
	probe := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(probe)
	}

	st := redisstore.NewFromConfig(cfg.Redis, redisstore.WithLogger(probe.logger))
	eng, err := New(st, append([]Option{WithConfig(cfg)}, opts...)...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	eng.ownsStore = true
	return eng, nil
}

// ──────────────────────────────────────────────────
// Producer
// ──────────────────────────────────────────────────

// Enqueue encodes payload with the engine's codec and pushes it onto queue.
func (eng *Engine) Enqueue(ctx context.Context, queueName string, payload any) (*envelope.Envelope, error) {
	if queueName == "" {
		return nil, qmin.ErrEmptyQueueName
	}
	data, err := eng.codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for queue %q: %w", queueName, err)
	}
	return eng.EnqueueRaw(ctx, queueName, data)
}

// Enqueue pushes a typed payload onto queue.
func Enqueue[T any](ctx context.Context, eng *Engine, queueName string, payload T) (*envelope.Envelope, error) {
	return eng.Enqueue(ctx, queueName, payload)
}

// EnqueueDefinition pushes a payload onto the queue of def.
func EnqueueDefinition[T any](ctx context.Context, eng *Engine, def *job.Definition[T], payload T) (*envelope.Envelope, error) {
	return eng.Enqueue(ctx, def.Queue, payload)
}

// EnqueueRaw pushes a payload that is already encoded with the engine's
// codec. It records the queue in the discovery set, stamps lastEnqueued,
// pushes the envelope and announces it on the enqueued topic. The first
// store error is returned; the envelope is returned either way so callers
// can log what was attempted.
func (eng *Engine) EnqueueRaw(ctx context.Context, queueName string, data []byte) (*envelope.Envelope, error) {
	if queueName == "" {
		return nil, qmin.ErrEmptyQueueName
	}

	env := envelope.New(queueName, data)
	raw, err := eng.codec.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope for queue %q: %w", queueName, err)
	}

	err = eng.store.Enqueue(ctx, store.EnqueueWrite{
		QueuesKey: eng.keys.Queues(),
		Queue:     queueName,
		MetaKey:   eng.keys.Meta(queueName),
		At:        env.EnqueuedAt,
		ListKey:   eng.keys.Queue(queueName),
		Item:      raw,
		Topic:     eng.keys.Topic(store.TopicEnqueued),
	})
	if err != nil {
		eng.logger.Error("enqueue failed",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
		return env, err
	}

	eng.logger.Debug("job enqueued",
		slog.String("queue", queueName),
		slog.Int("bytes", len(raw)),
	)
	eng.extensions.EmitJobEnqueued(ctx, env)
	return env, nil
}

// ──────────────────────────────────────────────────
// Consumer
// ──────────────────────────────────────────────────

// Handle binds h to queue for ListenAll.
func (eng *Engine) Handle(queueName string, h job.Handler) {
	eng.registry.Register(queueName, h)
}

// Register binds a typed definition for ListenAll.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// NewSession creates a consumer session for queue with the engine's
// logger, extensions, middleware, codec, backoff and the queue's limits.
// opts are applied last.
func (eng *Engine) NewSession(queueName string, opts ...worker.Option) (*worker.Session, error) {
	eng.mu.Lock()
	if eng.closed {
		eng.mu.Unlock()
		return nil, store.ErrClosed
	}
	eng.mu.Unlock()

	base := []worker.Option{
		worker.WithLogger(eng.logger),
		worker.WithExtensions(eng.extensions),
		worker.WithMiddleware(eng.middleware()...),
		worker.WithCodec(eng.codec),
		worker.WithBackoff(eng.bo),
		worker.WithLimiter(eng.queueManager.Limiter(queueName)),
	}
	s, err := worker.NewSession(eng.store, eng.cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	eng.mu.Lock()
	eng.sessions = append(eng.sessions, s)
	eng.mu.Unlock()
	return s, nil
}

// Listen consumes queue with h in a new session. See worker.Session.Listen.
func (eng *Engine) Listen(ctx context.Context, queueName string, h job.Handler, opts ...worker.Option) error {
	if queueName == "" {
		return qmin.ErrEmptyQueueName
	}
	s, err := eng.NewSession(queueName, opts...)
	if err != nil {
		return err
	}
	return s.Listen(ctx, queueName, h)
}

// ListenAll runs one session per registered queue and returns when all
// have stopped. Every session is created before any starts, so a
// configuration error leaves nothing running. When a running session
// fails, the others are asked to shut down and the first error is
// returned.
func (eng *Engine) ListenAll(ctx context.Context, opts ...worker.Option) error {
	queues := eng.registry.Queues()
	if len(queues) == 0 {
		return qmin.ErrMissingHandler
	}

	type binding struct {
		queue   string
		handler job.Handler
		session *worker.Session
	}
	bindings := make([]binding, 0, len(queues))
	for _, name := range queues {
		h, _ := eng.registry.Get(name)
		if job.IsNil(h) {
			return fmt.Errorf("%w: queue %q", qmin.ErrMissingHandler, name)
		}
		s, err := eng.NewSession(name, opts...)
		if err != nil {
			return err
		}
		bindings = append(bindings, binding{queue: name, handler: h, session: s})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range bindings {
		g.Go(func() error {
			return b.session.Listen(gctx, b.queue, b.handler)
		})
	}
	return g.Wait()
}

// Sessions returns the sessions created by this engine.
func (eng *Engine) Sessions() []*worker.Session {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	out := make([]*worker.Session, len(eng.sessions))
	copy(out, eng.sessions)
	return out
}

func (eng *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	all := make([]mw.Middleware, 0, 3+len(eng.mws))
	all = append(all, tracingMw, metricsMw, mw.Logging(eng.logger))
	return append(all, eng.mws...)
}

// ──────────────────────────────────────────────────
// Introspection
// ──────────────────────────────────────────────────

// QueueStats describes one queue.
type QueueStats struct {
	Name   string
	Length int64

	// Zero when never recorded.
	LastEnqueued time.Time
	LastDequeued time.Time
	Completed    time.Time

	// Meta is the raw metadata hash.
	Meta map[string]string
}

// Stats returns the backlog length and metadata of queue.
func (eng *Engine) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	if queueName == "" {
		return nil, qmin.ErrEmptyQueueName
	}
	n, err := eng.store.Len(ctx, eng.keys.Queue(queueName))
	if err != nil {
		return nil, err
	}
	meta, err := eng.store.Meta(ctx, eng.keys.Meta(queueName))
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Name:         queueName,
		Length:       n,
		LastEnqueued: millis(meta[store.FieldLastEnqueued]),
		LastDequeued: millis(meta[store.FieldLastDequeued]),
		Completed:    millis(meta[store.FieldCompleted]),
		Meta:         meta,
	}, nil
}

// Queues returns every queue name a producer has enqueued to, sorted.
func (eng *Engine) Queues(ctx context.Context) ([]string, error) {
	names, err := eng.store.Members(ctx, eng.keys.Queues())
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func millis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// NewBroker creates a stream broker for this engine's namespace and codec.
// Run it with Watch.
func (eng *Engine) NewBroker(opts ...stream.BrokerOption) *stream.Broker {
	all := append([]stream.BrokerOption{stream.WithLogger(eng.logger)}, opts...)
	return stream.NewBroker(eng.keys, eng.codec, all...)
}

// Watch runs b over the engine's store until ctx is done. The store must
// implement store.Watcher.
func (eng *Engine) Watch(ctx context.Context, b *stream.Broker) error {
	w, ok := eng.store.(store.Watcher)
	if !ok {
		return qmin.ErrWatchUnsupported
	}
	return b.Run(ctx, w)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping checks the store connection.
func (eng *Engine) Ping(ctx context.Context) error {
	return eng.store.Ping(ctx)
}

// Close notifies extensions and, for engines created with Open, closes the
// Redis connection. Sessions still listening keep their own blocking
// connection but lose the shared one.
func (eng *Engine) Close() error {
	eng.mu.Lock()
	if eng.closed {
		eng.mu.Unlock()
		return nil
	}
	eng.closed = true
	eng.mu.Unlock()

	eng.extensions.EmitShutdown(context.Background())
	if !eng.ownsStore {
		return nil
	}
	if err := eng.store.Close(); err != nil && !errors.Is(err, store.ErrClosed) {
		return err
	}
	return nil
}

// Config returns the engine configuration.
func (eng *Engine) Config() qmin.Config { return eng.cfg }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the handler registry used by ListenAll.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// QueueManager returns the per-queue limits.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }
