package envelope

import (
	"encoding/json"
	"errors"
)

// JSONCodec encodes envelopes as the JSON document
//
//	{"byPid":1,"byTitle":"...","queueName":"...","date":1700000000000,"data":{...},"retryCount":0}
type JSONCodec struct{}

type jsonWire struct {
	ByPid      int             `json:"byPid"`
	ByTitle    string          `json:"byTitle"`
	QueueName  string          `json:"queueName"`
	Date       int64           `json:"date"`
	Data       json.RawMessage `json:"data"`
	RetryCount int             `json:"retryCount"`
}

func (JSONCodec) Encode(e *Envelope) ([]byte, error) {
	data := json.RawMessage(e.Data)
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(jsonWire{
		ByPid:      e.ProducerID,
		ByTitle:    e.ProducerLabel,
		QueueName:  e.QueueName,
		Date:       e.EnqueuedAt,
		Data:       data,
		RetryCount: e.RetryCount,
	})
}

func (JSONCodec) Decode(b []byte) (*Envelope, error) {
	var w jsonWire
	if err := json.Unmarshal(b, &w); err != nil {
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

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return CodecNameJSON }
