package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/xraph/qmin"
	"github.com/xraph/qmin/store"
)

// Compile-time interface checks.
var (
	_ store.Store   = (*Store)(nil)
	_ store.Watcher = (*Store)(nil)
	_ store.Popper  = (*Popper)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCircuitBreaker wraps the non-blocking commands in a circuit breaker
// that opens after failures consecutive errors and half-opens after reset.
// While open, writes fail fast with store.ErrUnavailable instead of each
// waiting for a dial timeout.
func WithCircuitBreaker(failures uint32, reset time.Duration) Option {
	return func(s *Store) {
		s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "qmin-redis",
			MaxRequests: 1,
			Timeout:     reset,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				// A missing key is an answer, not an outage.
				return err == nil || errors.Is(err, goredis.Nil)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Warn("redis circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
}

// Store implements store.Store backed by Redis.
type Store struct {
	client  *goredis.Client
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker
	owned   bool
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromConfig dials a client from cfg. Close closes that client.
func NewFromConfig(cfg qmin.RedisConfig, opts ...Option) *Store {
	s := New(goredis.NewClient(ClientOptions(cfg)), opts...)
	s.owned = true
	return s
}

// ClientOptions translates connection parameters into go-redis options.
func ClientOptions(cfg qmin.RedisConfig) *goredis.Options {
	o := &goredis.Options{
		Addr:        cfg.Addr(),
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		o.TLSConfig = &tls.Config{
			ServerName:         cfg.TLSServerName,
			InsecureSkipVerify: cfg.TLSInsecureSkipVerify, //nolint:gosec // opt-in for self-signed test servers
			MinVersion:         tls.VersionTLS12,
		}
	}
	return o
}

// Client returns the underlying Redis client.
func (s *Store) Client() *goredis.Client { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.do("ping", func() error { return s.client.Ping(ctx).Err() })
}

// Close closes the client when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Enqueue pipelines SADD, HSET, RPUSH and PUBLISH.
func (s *Store) Enqueue(ctx context.Context, w store.EnqueueWrite) error {
	return s.do("enqueue", func() error {
		_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.SAdd(ctx, w.QueuesKey, w.Queue)
			p.HSet(ctx, w.MetaKey, store.FieldLastEnqueued, w.At)
			p.RPush(ctx, w.ListKey, w.Item)
			p.Publish(ctx, w.Topic, w.Item)
			return nil
		})
		return err
	})
}

// Push appends item to the list at key (RPUSH).
func (s *Store) Push(ctx context.Context, key string, item []byte) error {
	return s.do("rpush", func() error { return s.client.RPush(ctx, key, item).Err() })
}

// SetMeta sets one hash field (HSET).
func (s *Store) SetMeta(ctx context.Context, key, field string, value int64) error {
	return s.do("hset", func() error { return s.client.HSet(ctx, key, field, value).Err() })
}

// Publish publishes msg on topic (PUBLISH).
func (s *Store) Publish(ctx context.Context, topic string, msg []byte) error {
	return s.do("publish", func() error { return s.client.Publish(ctx, topic, msg).Err() })
}

// AddToSet adds member to the set at key (SADD).
func (s *Store) AddToSet(ctx context.Context, key, member string) error {
	return s.do("sadd", func() error { return s.client.SAdd(ctx, key, member).Err() })
}

// Len returns the list length (LLEN).
func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do("llen", func() error {
		var err error
		n, err = s.client.LLen(ctx, key).Result()
		return err
	})
	return n, err
}

// Meta returns the whole metadata hash (HGETALL).
func (s *Store) Meta(ctx context.Context, key string) (map[string]string, error) {
	var m map[string]string
	err := s.do("hgetall", func() error {
		var err error
		m, err = s.client.HGetAll(ctx, key).Result()
		return err
	})
	return m, err
}

// Members returns the set members (SMEMBERS).
func (s *Store) Members(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.do("smembers", func() error {
		var err error
		members, err = s.client.SMembers(ctx, key).Result()
		return err
	})
	return members, err
}

// NewPopper opens a single-connection client for blocking pops.
func (s *Store) NewPopper() (store.Popper, error) {
	o := *s.client.Options()
	o.PoolSize = 1
	o.MinIdleConns = 0
	o.MaxIdleConns = 1
	return &Popper{client: goredis.NewClient(&o)}, nil
}

// Watch subscribes to topics (SUBSCRIBE) on a dedicated pub/sub
// connection. The subscription is confirmed before Watch returns.
func (s *Store) Watch(ctx context.Context, topics ...string) (<-chan store.Message, error) {
	ps := s.client.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe: %w", store.ErrUnavailable, err)
	}

	out := make(chan store.Message, 256)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- store.Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					s.logger.Debug("watch buffer full, message dropped", slog.String("topic", msg.Channel))
				}
			}
		}
	}()
	return out, nil
}

func (s *Store) do(op string, fn func() error) error {
	var err error
	if s.breaker == nil {
		err = fn()
	} else {
		_, err = s.breaker.Execute(func() (any, error) { return nil, fn() })
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
	}
	return nil
}

// Popper issues BLPOP on its own connection.
type Popper struct {
	client *goredis.Client
}

// BlockingPop runs BLPOP key timeout. A timeout yields (nil, nil).
func (p *Popper) BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := p.client.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if errors.Is(err, goredis.ErrClosed) {
			return nil, store.ErrClosed
		}
		return nil, fmt.Errorf("%w: blpop: %w", store.ErrUnavailable, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("qmin/redis: blpop: unexpected reply length %d", len(res))
	}
	return []byte(res[1]), nil
}

// Close closes the popper's connection.
func (p *Popper) Close() error { return p.client.Close() }
