// Package ws provides the default WebSocket dialer for the relay client,
// built on nhooyr.io/websocket.
package ws

import (
	"context"
	"fmt"

	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/pkg/protocol"
	"nhooyr.io/websocket"
)

// readLimit caps a single inbound message. nhooyr's default of 32KiB is too
// small for large JSON payloads.
const readLimit = 1 << 20

// Dialer dials the relay with nhooyr.io/websocket.
type Dialer struct {
	// Options is passed to websocket.Dial. May be nil.
	Options *websocket.DialOptions
}

// New returns a Dialer with default options.
func New() *Dialer {
	return &Dialer{}
}

// Dial implements client.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (client.Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)
	return &Conn{conn: conn}, nil
}

// Conn is a client.Transport over a nhooyr websocket connection.
type Conn struct {
	conn *websocket.Conn
}

// Read implements client.Transport.
func (c *Conn) Read(ctx context.Context) (protocol.Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return protocol.Frame{}, err
	}
	if typ == websocket.MessageBinary {
		return protocol.Frame{Type: protocol.FrameBinary, Data: data}, nil
	}
	return protocol.Frame{Type: protocol.FrameText, Data: data}, nil
}

// Write implements client.Transport.
func (c *Conn) Write(ctx context.Context, frame protocol.Frame) error {
	typ := websocket.MessageText
	if frame.Type == protocol.FrameBinary {
		typ = websocket.MessageBinary
	}
	return c.conn.Write(ctx, typ, frame.Data)
}

// Close implements client.Transport.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
