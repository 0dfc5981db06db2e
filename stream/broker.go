package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/store"
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker watches the lifecycle topics of one namespace and fans events out
// to subscribers.
type Broker struct {
	keys   store.Keys
	codec  envelope.Codec
	logger *slog.Logger
	topics *TopicRegistry

	// types maps a pub/sub topic to its event type.
	types map[string]EventType

	mu          sync.Mutex
	subscribers map[string]*Subscriber

	received  atomic.Int64
	delivered atomic.Int64

	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = l }
}

// NewBroker creates a broker for the namespace of keys. codec must match
// the producers' codec.
func NewBroker(keys store.Keys, codec envelope.Codec, opts ...BrokerOption) *Broker {
	b := &Broker{
		keys:        keys,
		codec:       codec,
		logger:      slog.Default(),
		topics:      NewTopicRegistry(),
		subscribers: make(map[string]*Subscriber),
		bufferSize:  DefaultBufferSize,
		types: map[string]EventType{
			keys.Topic(store.TopicEnqueued):  EventEnqueued,
			keys.Topic(store.TopicDequeued):  EventDequeued,
			keys.Topic(store.TopicProcessed): EventProcessed,
			keys.Topic(store.TopicFailed):    EventFailed,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber on the given stream topics. Subscribing
// an existing ID adds topics to it.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	if !ok {
		sub = newSubscriber(subscriberID, b.bufferSize)
		b.subscribers[subscriberID] = sub
	}
	b.mu.Unlock()

	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// RemoveSubscriber unsubscribes and closes a subscriber.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)

	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	delete(b.subscribers, subscriberID)
	b.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Run watches the lifecycle topics through w until ctx is done, then
// closes every subscriber. It returns nil when ctx ended the watch and
// store.ErrClosed when the store went away first.
func (b *Broker) Run(ctx context.Context, w store.Watcher) error {
	watched := make([]string, 0, len(b.types))
	for topic := range b.types {
		watched = append(watched, topic)
	}

	msgs, err := w.Watch(ctx, watched...)
	if err != nil {
		b.closeAll()
		return err
	}
	b.logger.Info("stream broker watching", slog.String("namespace", b.keys.Namespace))

	for msg := range msgs {
		b.dispatch(msg)
	}
	b.closeAll()

	if ctx.Err() != nil {
		return nil
	}
	return store.ErrClosed
}

func (b *Broker) dispatch(msg store.Message) {
	typ, ok := b.types[msg.Topic]
	if !ok {
		return
	}
	b.received.Add(1)

	evt := &Event{
		Type:     typ,
		Received: time.Now(),
		Raw:      msg.Payload,
	}
	if env, err := b.codec.Decode(msg.Payload); err != nil {
		evt.DecodeErr = err
	} else {
		evt.Envelope = env
		evt.Queue = env.QueueName
	}

	b.delivered.Add(int64(b.topics.Broadcast(topicsFor(evt), evt)))
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for id, sub := range subs {
		b.topics.UnsubscribeAll(id)
		sub.close()
	}
	b.logger.Info("stream broker stopped")
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subscribers)
	b.mu.Unlock()
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: n,
		Received:        b.received.Load(),
		Delivered:       b.delivered.Load(),
	}
}

// BrokerStats contains broker counters.
type BrokerStats struct {
	TopicCount      int
	SubscriberCount int
	Received        int64
	Delivered       int64
}
