package store

// Key naming for one namespace. With the default namespace "qmin":
//
//	qmin.<queue>      list of envelopes
//	qminmeta.<queue>  metadata hash (lastEnqueued, lastDequeued, completed)
//	qminqueues        set of queue names ever enqueued to
//	qmin.<event>      pub/sub topic (enqueued, dequeued, processed, failed)
type Keys struct {
	Namespace string
}

// Metadata hash fields.
const (
	FieldLastEnqueued = "lastEnqueued"
	FieldLastDequeued = "lastDequeued"
	FieldCompleted    = "completed"
)

// Lifecycle topics, relative to the namespace.
const (
	TopicEnqueued  = "enqueued"
	TopicDequeued  = "dequeued"
	TopicProcessed = "processed"
	TopicFailed    = "failed"
)

// NewKeys returns the key set for namespace.
func NewKeys(namespace string) Keys { return Keys{Namespace: namespace} }

// Queue returns the list key for a queue.
func (k Keys) Queue(name string) string { return k.Namespace + "." + name }

// Meta returns the metadata hash key for a queue.
func (k Keys) Meta(name string) string { return k.Namespace + "meta." + name }

// Queues returns the discovery set key.
func (k Keys) Queues() string { return k.Namespace + "queues" }

// Topic returns the pub/sub channel for a lifecycle event.
func (k Keys) Topic(event string) string { return k.Namespace + "." + event }
