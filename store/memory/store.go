// Package memory implements store.Store in process memory. Blocking pops,
// pub/sub fan-out and the metadata hashes behave like their Redis
// counterparts, which makes it the default double for consumer tests.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/qmin/store"
)

// Compile-time interface checks.
var (
	_ store.Store   = (*Store)(nil)
	_ store.Watcher = (*Store)(nil)
	_ store.Popper  = (*popper)(nil)
)

// watchBuffer is the per-watcher channel capacity.
const watchBuffer = 256

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.Mutex

	lists map[string][][]byte
	metas map[string]map[string]string
	sets  map[string]map[string]struct{}

	// pushed is closed and replaced on every push to wake blocked pops.
	pushed chan struct{}

	published   []store.Message
	subscribers map[string][]chan []byte
	watchers    map[*watcher]struct{}

	// watching counts goroutines tied to open watches.
	watching sync.WaitGroup

	popErr error
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		lists:       make(map[string][][]byte),
		metas:       make(map[string]map[string]string),
		sets:        make(map[string]map[string]struct{}),
		pushed:      make(chan struct{}),
		subscribers: make(map[string][]chan []byte),
		watchers:    make(map[*watcher]struct{}),
	}
}

// Ping always succeeds for an open store.
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	return nil
}

// Close marks the store closed, wakes every blocked pop and ends every
// watch.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.pushed)
		for w := range m.watchers {
			m.dropWatcherLocked(w)
		}
	}
	return nil
}

// Enqueue applies w as four sequential writes.
func (m *Store) Enqueue(ctx context.Context, w store.EnqueueWrite) error {
	if err := m.AddToSet(ctx, w.QueuesKey, w.Queue); err != nil {
		return err
	}
	if err := m.SetMeta(ctx, w.MetaKey, store.FieldLastEnqueued, w.At); err != nil {
		return err
	}
	if err := m.Push(ctx, w.ListKey, w.Item); err != nil {
		return err
	}
	return m.Publish(ctx, w.Topic, w.Item)
}

// Push appends item to the list at key.
func (m *Store) Push(_ context.Context, key string, item []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	m.lists[key] = append(m.lists[key], append([]byte(nil), item...))
	close(m.pushed)
	m.pushed = make(chan struct{})
	return nil
}

// SetMeta sets one field of the hash at key.
func (m *Store) SetMeta(_ context.Context, key, field string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	h, ok := m.metas[key]
	if !ok {
		h = make(map[string]string)
		m.metas[key] = h
	}
	h[field] = strconv.FormatInt(value, 10)
	return nil
}

// Publish records msg and delivers it to current subscribers of topic.
// Slow subscribers lose messages rather than block the publisher, as with
// Redis pub/sub.
func (m *Store) Publish(_ context.Context, topic string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	cp := append([]byte(nil), msg...)
	m.published = append(m.published, store.Message{Topic: topic, Payload: cp})
	for _, ch := range m.subscribers[topic] {
		select {
		case ch <- cp:
		default:
		}
	}
	for w := range m.watchers {
		if _, ok := w.topics[topic]; !ok {
			continue
		}
		select {
		case w.ch <- store.Message{Topic: topic, Payload: cp}:
		default:
		}
	}
	return nil
}

type watcher struct {
	topics map[string]struct{}
	ch     chan store.Message
	done   chan struct{}
}

// Watch implements store.Watcher.
func (m *Store) Watch(ctx context.Context, topics ...string) (<-chan store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, store.ErrClosed
	}

	w := &watcher{
		topics: make(map[string]struct{}, len(topics)),
		ch:     make(chan store.Message, watchBuffer),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		w.topics[t] = struct{}{}
	}
	m.watchers[w] = struct{}{}

	m.watching.Add(1)
	go func() {
		defer m.watching.Done()
		select {
		case <-ctx.Done():
			m.mu.Lock()
			defer m.mu.Unlock()
			m.dropWatcherLocked(w)
		case <-w.done:
		}
	}()
	return w.ch, nil
}

// dropWatcherLocked closes w once. m.mu must be held.
func (m *Store) dropWatcherLocked(w *watcher) {
	if _, ok := m.watchers[w]; !ok {
		return
	}
	delete(m.watchers, w)
	close(w.ch)
	close(w.done)
}

// AddToSet adds member to the set at key.
func (m *Store) AddToSet(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}

	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	s[member] = struct{}{}
	return nil
}

// Len returns the length of the list at key.
func (m *Store) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[key])), nil
}

// Meta returns a copy of the hash at key.
func (m *Store) Meta(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.metas[key]))
	for k, v := range m.metas[key] {
		out[k] = v
	}
	return out, nil
}

// Members returns the members of the set at key.
func (m *Store) Members(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

// NewPopper returns a popper over this store.
func (m *Store) NewPopper() (store.Popper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, store.ErrClosed
	}
	return &popper{s: m}, nil
}

// ──────────────────────────────────────────────────
// Test helpers
// ──────────────────────────────────────────────────

// Subscribe returns a buffered channel receiving every message published
// to topic from now on.
func (m *Store) Subscribe(topic string) <-chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan []byte, 1024)
	m.subscribers[topic] = append(m.subscribers[topic], ch)
	return ch
}

// Published returns every message published to topic so far.
func (m *Store) Published(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	for _, msg := range m.published {
		if msg.Topic == topic {
			out = append(out, msg.Payload)
		}
	}
	return out
}

// SetPopError makes every blocking pop fail with err until it is reset
// with nil.
func (m *Store) SetPopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.popErr = err
}

func (m *Store) tryPop(key string) ([]byte, <-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, store.ErrClosed
	}
	if m.popErr != nil {
		return nil, nil, m.popErr
	}
	if items := m.lists[key]; len(items) > 0 {
		head := items[0]
		if len(items) == 1 {
			delete(m.lists, key)
		} else {
			m.lists[key] = items[1:]
		}
		return head, nil, nil
	}
	return nil, m.pushed, nil
}

type popper struct {
	s *Store
}

// BlockingPop waits up to timeout for an item at key.
func (p *popper) BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		item, wake, err := p.s.tryPop(key)
		if err != nil || item != nil {
			return item, err
		}

		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *popper) Close() error { return nil }
