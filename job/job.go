package job

import (
	"fmt"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/id"
)

// Mode is the completion model of a handler.
type Mode int

const (
	// ModeFireAndForget means the consumer does not wait for the handler.
	// Work still running at shutdown gets a fixed grace period.
	ModeFireAndForget Mode = iota

	// ModeAcknowledge means the handler signals completion and shutdown
	// waits for every outstanding acknowledgment.
	ModeAcknowledge
)

func (m Mode) String() string {
	switch m {
	case ModeFireAndForget:
		return "fire-and-forget"
	case ModeAcknowledge:
		return "acknowledge"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Job is one dequeued envelope handed to a handler.
type Job struct {
	// ID identifies this delivery in logs, spans and hooks. It is not part
	// of the wire format.
	ID id.MessageID

	// SessionID is the consumer session that popped the envelope.
	SessionID id.SessionID

	Queue    string
	Envelope *envelope.Envelope

	// Raw is the envelope exactly as popped. Lifecycle topics carry it
	// unchanged.
	Raw []byte

	DequeuedAt time.Time

	// Timeout, when non-zero, bounds the handler call.
	Timeout time.Duration

	codec envelope.Codec
}

// New builds a Job for env popped from queue. The codec must be the one
// that decoded env.
func New(queue string, env *envelope.Envelope, codec envelope.Codec) *Job {
	return &Job{
		ID:         id.NewMessageID(),
		Queue:      queue,
		Envelope:   env,
		DequeuedAt: time.Now(),
		codec:      codec,
	}
}

// Parse decodes raw with codec and builds the Job for it.
func Parse(queue string, raw []byte, codec envelope.Codec) (*Job, error) {
	env, err := codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	j := New(queue, env, codec)
	j.Raw = raw
	return j, nil
}

// Payload returns the encoded payload bytes.
func (j *Job) Payload() []byte {
	if j.Envelope == nil {
		return nil
	}
	return j.Envelope.Data
}

// Decode unmarshals the payload into v with the envelope's codec.
func (j *Job) Decode(v any) error {
	if j.codec == nil {
		return fmt.Errorf("job %s: no codec", j.ID)
	}
	if err := j.codec.Unmarshal(j.Payload(), v); err != nil {
		return fmt.Errorf("decode payload for queue %q: %w", j.Queue, err)
	}
	return nil
}

// Latency returns the time between enqueue and dequeue.
func (j *Job) Latency() time.Duration {
	if j.Envelope == nil {
		return 0
	}
	return j.DequeuedAt.Sub(j.Envelope.Enqueued())
}
