package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// FrameType is the WebSocket data frame kind an envelope travels in.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
)

// String returns the string representation of FrameType
func (ft FrameType) String() string {
	switch ft {
	case FrameText:
		return "TEXT"
	case FrameBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Frame is one WebSocket data message.
type Frame struct {
	Type FrameType
	Data []byte
}

var ErrUnknownCodec = errors.New("protocol: unknown codec")

// Codec turns envelopes into frame payloads and back.
type Codec interface {
	Name() string
	FrameType() FrameType
	Encode(e Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

var (
	// JSON carries envelopes as {"name": ..., "args": [...]} text frames.
	JSON Codec = jsonCodec{}
	// Proto carries envelopes as google.protobuf.Struct binary frames.
	Proto Codec = protoCodec{}
)

// CodecFor returns the codec used for frames of type t.
func CodecFor(t FrameType) (Codec, error) {
	switch t {
	case FrameText:
		return JSON, nil
	case FrameBinary:
		return Proto, nil
	default:
		return nil, fmt.Errorf("%w for frame type %s", ErrUnknownCodec, t)
	}
}

// CodecByName resolves "json" or "proto".
func CodecByName(name string) (Codec, error) {
	switch name {
	case JSON.Name():
		return JSON, nil
	case Proto.Name():
		return Proto, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// EncodeFrame encodes e with c into a frame of the codec's type.
func EncodeFrame(c Codec, e Envelope) (Frame, error) {
	if err := e.Validate(); err != nil {
		return Frame{}, err
	}
	data, err := c.Encode(e)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: c.FrameType(), Data: data}, nil
}

// DecodeFrame picks the codec from the frame type and decodes the payload.
// The codec is returned so replies can use the same encoding.
func DecodeFrame(f Frame) (Envelope, Codec, error) {
	c, err := CodecFor(f.Type)
	if err != nil {
		return Envelope{}, nil, err
	}
	e, err := c.Decode(f.Data)
	if err != nil {
		return Envelope{}, c, err
	}
	return e, c, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string         { return "json" }
func (jsonCodec) FrameType() FrameType { return FrameText }

func (jsonCodec) Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(struct {
		Name string `json:"name"`
		Args []any  `json:"args"`
	}{e.Name, e.normalizedArgs()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode keeps numbers as json.Number so they are echoed exactly as sent,
// including literals outside the float64 range.
func (jsonCodec) Decode(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Envelope{}, errors.New("failed to decode envelope: trailing data after object")
	}
	return envelopeFromMap(m)
}

type protoCodec struct{}

func (protoCodec) Name() string         { return "proto" }
func (protoCodec) FrameType() FrameType { return FrameBinary }

func (protoCodec) Encode(e Envelope) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"name": e.Name,
		"args": protoValue(e.normalizedArgs()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

func (protoCodec) Decode(data []byte) (Envelope, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return envelopeFromMap(s.AsMap())
}

// protoValue rewrites json.Number, which structpb does not accept, into a
// float64, or into its literal text when it does not fit.
func protoValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = protoValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = protoValue(item)
		}
		return out
	default:
		return v
	}
}
