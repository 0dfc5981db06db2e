package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a store failure that is transient by default: a
// lost connection, a timeout or an open circuit breaker. Consumer loops log
// it and keep going.
var ErrUnavailable = errors.New("qmin/store: unavailable")

// ErrClosed is returned by operations on a closed store or popper.
var ErrClosed = errors.New("qmin/store: closed")

// Store is the non-blocking side of the backing store: list push, metadata
// hash writes, discovery set, pub/sub publish and the read helpers used for
// monitoring. One Store may be shared by a producer and many sessions.
type Store interface {
	// Enqueue performs the producer writes for one envelope in a single
	// round trip. Writes are not transactional; the first error is returned.
	Enqueue(ctx context.Context, w EnqueueWrite) error

	// Push appends item to the tail of the list at key.
	Push(ctx context.Context, key string, item []byte) error

	// SetMeta sets one field of the metadata hash at key.
	SetMeta(ctx context.Context, key, field string, value int64) error

	// Publish sends msg to every subscriber of topic.
	Publish(ctx context.Context, topic string, msg []byte) error

	// AddToSet adds member to the set at key.
	AddToSet(ctx context.Context, key, member string) error

	// Len returns the length of the list at key.
	Len(ctx context.Context, key string) (int64, error)

	// Meta returns every field of the metadata hash at key.
	Meta(ctx context.Context, key string) (map[string]string, error)

	// Members returns the members of the set at key.
	Members(ctx context.Context, key string) ([]string, error)

	// NewPopper opens a connection reserved for blocking pops. Each
	// consumer session owns one so bookkeeping writes never queue behind a
	// pending pop.
	NewPopper() (Popper, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Popper performs blocking pops on a dedicated connection.
type Popper interface {
	// BlockingPop removes and returns the head of the list at key, waiting
	// up to timeout for an item. It returns (nil, nil) on timeout. The pop
	// is atomic: an item is handed to exactly one caller across every
	// process sharing the store.
	BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)

	// Close releases the connection.
	Close() error
}

// EnqueueWrite is the set of writes behind one enqueue: register the queue
// name, stamp lastEnqueued, push the envelope and announce it.
type EnqueueWrite struct {
	QueuesKey string // discovery set
	Queue     string // member added to QueuesKey
	MetaKey   string
	At        int64 // lastEnqueued, ms since epoch
	ListKey   string
	Item      []byte // encoded envelope
	Topic     string // enqueued topic
}

// Message is one pub/sub message.
type Message struct {
	Topic   string
	Payload []byte
}

// Watcher is implemented by stores that can stream pub/sub messages to an
// observer. Like Redis pub/sub, delivery is best effort: a slow reader
// loses messages.
type Watcher interface {
	// Watch subscribes to topics. Messages arrive on the returned channel
	// until ctx is done or the store is closed; the channel is then closed.
	Watch(ctx context.Context, topics ...string) (<-chan Message, error)
}
