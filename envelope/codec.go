package envelope

import "fmt"

// Codec defines the serialization contract for envelopes and payloads.
// A payload is always encoded with the same codec as its envelope.
type Codec interface {
	// Encode serializes an envelope to bytes.
	Encode(e *Envelope) ([]byte, error)

	// Decode deserializes bytes into an envelope.
	Decode(data []byte) (*Envelope, error)

	// Marshal encodes a payload value for Envelope.Data.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes Envelope.Data into v.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier ("json" or "msgpack").
	Name() string
}

// Codec names accepted by GetCodec.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. An empty name selects JSON.
func GetCodec(name string) (Codec, error) {
	switch name {
	case CodecNameJSON, "":
		return JSONCodec{}, nil
	case CodecNameMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("envelope: unknown codec %q", name)
	}
}
