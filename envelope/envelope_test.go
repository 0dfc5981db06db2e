package envelope_test

import (
	"encoding/json"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/qmin/envelope"
)

type task struct {
	Some  string   `json:"some" msgpack:"some"`
	Count int      `json:"count" msgpack:"count"`
	Tags  []string `json:"tags" msgpack:"tags"`
}

func codecs(t *testing.T) []envelope.Codec {
	t.Helper()
	var out []envelope.Codec
	for _, name := range []string{envelope.CodecNameJSON, envelope.CodecNameMsgpack} {
		c, err := envelope.GetCodec(name)
		if err != nil {
			t.Fatalf("GetCodec(%q): %v", name, err)
		}
		out = append(out, c)
	}
	return out
}

func TestNew(t *testing.T) {
	before := time.Now().UnixMilli()
	e := envelope.New("alpha", []byte(`{"some":"task"}`))
	after := time.Now().UnixMilli()

	if e.ProducerID != os.Getpid() {
		t.Errorf("ProducerID = %d, want %d", e.ProducerID, os.Getpid())
	}
	if e.ProducerLabel == "" {
		t.Error("ProducerLabel should not be empty")
	}
	if e.QueueName != "alpha" {
		t.Errorf("QueueName = %q, want %q", e.QueueName, "alpha")
	}
	if e.EnqueuedAt < before || e.EnqueuedAt > after {
		t.Errorf("EnqueuedAt = %d, want within [%d, %d]", e.EnqueuedAt, before, after)
	}
	if e.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", e.RetryCount)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payloads := []any{
		task{Some: "task", Count: 3, Tags: []string{"a", "b"}},
		task{},
	}

	for _, c := range codecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			for _, p := range payloads {
				data, err := c.Marshal(p)
				if err != nil {
					t.Fatalf("marshal payload: %v", err)
				}
				raw, err := c.Encode(envelope.New("alpha", data))
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				got, err := c.Decode(raw)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}

				var out task
				if err := c.Unmarshal(got.Data, &out); err != nil {
					t.Fatalf("unmarshal payload: %v", err)
				}
				want := p.(task)
				if !reflect.DeepEqual(normalize(out), normalize(want)) {
					t.Errorf("payload = %+v, want %+v", out, want)
				}
				if got.QueueName != "alpha" {
					t.Errorf("QueueName = %q, want alpha", got.QueueName)
				}
			}
		})
	}
}

// normalize maps empty slices to nil so codecs that differ only in how
// they represent an empty list compare equal.
func normalize(t task) task {
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	return t
}

func TestJSONWireFormat(t *testing.T) {
	c := envelope.JSONCodec{}
	e := &envelope.Envelope{
		ProducerID:    42,
		ProducerLabel: "worker",
		QueueName:     "alpha",
		EnqueuedAt:    1700000000000,
		Data:          []byte(`{"some":"task"}`),
	}
	raw, err := c.Encode(e)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("wire is not JSON: %v", err)
	}
	for _, key := range []string{"byPid", "byTitle", "queueName", "date", "data", "retryCount"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("wire document missing key %q: %s", key, raw)
		}
	}
	if doc["date"].(float64) != 1700000000000 {
		t.Errorf("date = %v, want 1700000000000", doc["date"])
	}
	data, ok := doc["data"].(map[string]any)
	if !ok || data["some"] != "task" {
		t.Errorf("data = %v, want embedded object", doc["data"])
	}
}

func TestJSONDecode_ForeignProducer(t *testing.T) {
	// An envelope produced by another client implementation.
	raw := []byte(`{"byPid":7,"byTitle":"node","queueName":"beta","date":1500000000000,"data":[1,2,3],"retryCount":0}`)
	e, err := envelope.JSONCodec{}.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.ProducerID != 7 || e.ProducerLabel != "node" || e.QueueName != "beta" {
		t.Errorf("unexpected envelope: %+v", e)
	}
	if string(e.Data) != "[1,2,3]" {
		t.Errorf("Data = %s, want [1,2,3]", e.Data)
	}
	if !e.Enqueued().Equal(time.UnixMilli(1500000000000)) {
		t.Errorf("Enqueued() = %v", e.Enqueued())
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, c := range codecs(t) {
		if _, err := c.Decode([]byte("not an envelope")); err == nil {
			t.Errorf("%s: expected decode error", c.Name())
		}
	}
	if _, err := (envelope.JSONCodec{}).Decode([]byte(`{"data":1}`)); err == nil {
		t.Error("expected error for envelope without queueName")
	}
}

func TestEncode_NilData(t *testing.T) {
	for _, c := range codecs(t) {
		raw, err := c.Encode(&envelope.Envelope{QueueName: "q"})
		if err != nil {
			t.Fatalf("%s: encode: %v", c.Name(), err)
		}
		got, err := c.Decode(raw)
		if err != nil {
			t.Fatalf("%s: decode: %v", c.Name(), err)
		}
		var v any
		if err := c.Unmarshal(got.Data, &v); err != nil {
			t.Fatalf("%s: unmarshal: %v", c.Name(), err)
		}
		if v != nil {
			t.Errorf("%s: payload = %v, want nil", c.Name(), v)
		}
	}
}

func TestGetCodec_Unknown(t *testing.T) {
	if _, err := envelope.GetCodec("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
