package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/omochice/event-relay/pkg/protocol"
)

var ErrEmptyEventName = errors.New("client: event name is required")

// Sender is the part of Manager the Composer needs.
type Sender interface {
	Status() protocol.Status
	Send(ctx context.Context, env protocol.Envelope) error
}

// Composer turns user input into outbound envelopes.
type Composer struct {
	sender Sender
}

// NewComposer creates a Composer sending through sender.
func NewComposer(sender Sender) *Composer {
	return &Composer{sender: sender}
}

// Compose builds the envelope for name and payload text. Payload text that
// parses as JSON is sent as that value; anything else is sent as the raw
// string.
func Compose(name, payload string) (protocol.Envelope, error) {
	if name == "" {
		return protocol.Envelope{}, ErrEmptyEventName
	}

	var value any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		value = payload
	}

	return protocol.Envelope{Name: name, Args: []any{value}}, nil
}

// Submit composes and sends exactly one envelope. It does not wait for the
// echo.
func (c *Composer) Submit(ctx context.Context, name, payload string) error {
	env, err := Compose(name, payload)
	if err != nil {
		return err
	}
	if c.sender.Status() != protocol.StatusOpen {
		return ErrNotConnected
	}
	return c.sender.Send(ctx, env)
}
