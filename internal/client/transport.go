// Package client implements the relay client: a connection manager owning at
// most one live connection, the ordered log of received echoes, and the
// composer that turns user input into envelopes.
package client

import (
	"context"

	"github.com/omochice/event-relay/pkg/protocol"
)

// Transport is an established client-side connection to the relay.
// Both the nhooyr and the gobwas implementations satisfy this interface.
type Transport interface {
	// Read receives the next data frame.
	// Returns an error once the connection is gone or ctx is done.
	Read(ctx context.Context) (protocol.Frame, error)

	// Write sends a data frame.
	Write(ctx context.Context, frame protocol.Frame) error

	// Close closes the connection
	Close() error
}

// Dialer opens Transports.
type Dialer interface {
	// Dial connects to url. Cancelling ctx aborts the handshake and, once
	// connected, tears the transport down.
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}
