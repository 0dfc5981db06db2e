// Package stream fans qmin lifecycle topics out to in-process subscribers.
//
// A [Broker] watches the enqueued, dequeued, processed and failed pub/sub
// topics of one namespace, decodes each envelope and delivers an [Event] to
// every subscriber of a matching stream topic. It is how monitoring tools
// follow a queue without consuming from it.
package stream

import (
	"time"

	"github.com/xraph/qmin/envelope"
)

// EventType identifies the lifecycle topic an event came from.
type EventType string

const (
	EventEnqueued  EventType = "enqueued"
	EventDequeued  EventType = "dequeued"
	EventProcessed EventType = "processed"
	EventFailed    EventType = "failed"
)

// Event is one lifecycle message as seen by a subscriber.
type Event struct {
	Type EventType

	// Received is when the broker received the message.
	Received time.Time

	// Queue is the envelope's queue, or "" when it could not be decoded.
	Queue string

	// Envelope is nil when DecodeErr is set.
	Envelope  *envelope.Envelope
	DecodeErr error

	// Raw is the published message, exactly as popped or pushed.
	Raw []byte
}

// Latency returns the time from enqueue to receipt, or zero for an
// undecodable event.
func (e *Event) Latency() time.Duration {
	if e.Envelope == nil {
		return 0
	}
	return e.Received.Sub(e.Envelope.Enqueued())
}
