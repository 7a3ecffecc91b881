// Package relay provides the server side of the event relay: per-session
// connections, the session registry and the acceptor that runs the echo
// protocol.
package relay

import (
	"context"

	"github.com/omochice/event-relay/pkg/protocol"
)

// Conn abstracts a message-framed bidirectional transport session.
// This interface isolates transport details from relay logic.
type Conn interface {
	// Read reads a single data frame.
	// Returns an error once the peer is gone or ctx is done.
	Read(ctx context.Context) (protocol.Frame, error)

	// Write sends a single data frame.
	Write(ctx context.Context, frame protocol.Frame) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
