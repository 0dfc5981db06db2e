package envelope

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes envelopes as MessagePack maps with the same keys as
// the JSON form. Producers and consumers of one namespace must agree on it.
type MsgpackCodec struct{}

type msgpackWire struct {
	ByPid      int                `msgpack:"byPid"`
	ByTitle    string             `msgpack:"byTitle"`
	QueueName  string             `msgpack:"queueName"`
	Date       int64              `msgpack:"date"`
	Data       msgpack.RawMessage `msgpack:"data"`
	RetryCount int                `msgpack:"retryCount"`
}

func (MsgpackCodec) Encode(e *Envelope) ([]byte, error) {
	data := msgpack.RawMessage(e.Data)
	if len(data) == 0 {
		data = msgpack.RawMessage{0xc0} // nil
	}
	return msgpack.Marshal(&msgpackWire{
		ByPid:      e.ProducerID,
		ByTitle:    e.ProducerLabel,
		QueueName:  e.QueueName,
		Date:       e.EnqueuedAt,
		Data:       data,
		RetryCount: e.RetryCount,
	})
}

func (MsgpackCodec) Decode(b []byte) (*Envelope, error) {
	var w msgpackWire
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	if w.QueueName == "" {
		return nil, errors.New("envelope: missing queueName")
	}
	return &Envelope{
		ProducerID:    w.ByPid,
		ProducerLabel: w.ByTitle,
		QueueName:     w.QueueName,
		EnqueuedAt:    w.Date,
		Data:          []byte(w.Data),
		RetryCount:    w.RetryCount,
	}, nil
}

func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
