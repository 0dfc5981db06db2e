// Package envelope builds and parses the job envelope: the serialized
// wrapper that carries a payload together with its provenance and enqueue
// time.
package envelope

import (
	"os"
	"path/filepath"
	"time"
)

// Envelope is the unit moved through a queue.
//
// Data holds the payload already encoded by the envelope's codec, so it is
// embedded verbatim in the wire document and handed to handlers without a
// second round trip through an intermediate type.
type Envelope struct {
	ProducerID    int    // byPid
	ProducerLabel string // byTitle
	QueueName     string
	EnqueuedAt    int64 // milliseconds since epoch
	Data          []byte
	RetryCount    int // always 0; reserved for retry logic
}

// New builds an envelope for the current process.
func New(queueName string, data []byte) *Envelope {
	return &Envelope{
		ProducerID:    os.Getpid(),
		ProducerLabel: processLabel(),
		QueueName:     queueName,
		EnqueuedAt:    time.Now().UnixMilli(),
		Data:          data,
	}
}

// Enqueued returns EnqueuedAt as a time.Time.
func (e *Envelope) Enqueued() time.Time {
	return time.UnixMilli(e.EnqueuedAt)
}

func processLabel() string {
	if len(os.Args) == 0 {
		return "go"
	}
	return filepath.Base(os.Args[0])
}
