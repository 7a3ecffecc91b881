// Package protocol defines the envelope exchanged between relay clients and
// the relay server, its frame codecs, and the connection status model both
// sides share.
package protocol

import (
	"errors"
	"fmt"
)

// EchoEvent is the fixed event name the server uses for every echo.
const EchoEvent = "eventEcho"

var (
	ErrMissingEventName = errors.New("protocol: missing event name")
	ErrInvalidEventArgs = errors.New("protocol: event args must be a list")
	ErrMalformedEcho    = errors.New("protocol: malformed echo payload")
)

// Envelope is a named event with an ordered list of JSON-compatible
// arguments. It is treated as immutable once sent.
type Envelope struct {
	Name string
	Args []any
}

// Validate reports whether the envelope can be put on the wire.
func (e Envelope) Validate() error {
	if e.Name == "" {
		return ErrMissingEventName
	}
	return nil
}

// String returns a short form used in logs.
func (e Envelope) String() string {
	return fmt.Sprintf("%s%v", e.Name, e.normalizedArgs())
}

// normalizedArgs never returns nil so encoders emit an empty list instead of null.
func (e Envelope) normalizedArgs() []any {
	if e.Args == nil {
		return []any{}
	}
	return e.Args
}

// NewEcho wraps e in the server's echo envelope:
// ("eventEcho", {name, args}).
func NewEcho(e Envelope) Envelope {
	return Envelope{
		Name: EchoEvent,
		Args: []any{map[string]any{
			"name": e.Name,
			"args": e.normalizedArgs(),
		}},
	}
}

// ParseEcho extracts the original envelope carried by an echo.
func ParseEcho(e Envelope) (Envelope, error) {
	if e.Name != EchoEvent || len(e.Args) != 1 {
		return Envelope{}, ErrMalformedEcho
	}
	payload, ok := e.Args[0].(map[string]any)
	if !ok {
		return Envelope{}, ErrMalformedEcho
	}
	inner, err := envelopeFromMap(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEcho, err)
	}
	return inner, nil
}

// envelopeFromMap is the decoded-object form shared by every codec.
func envelopeFromMap(m map[string]any) (Envelope, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return Envelope{}, ErrMissingEventName
	}

	var args []any
	switch v := m["args"].(type) {
	case nil:
		args = []any{}
	case []any:
		args = v
	default:
		return Envelope{}, ErrInvalidEventArgs
	}

	return Envelope{Name: name, Args: args}, nil
}
