// Package ws provides the WebSocket transport for the relay server.
package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/event-relay/pkg/protocol"
)

const closeGracePeriod = time.Second

// Conn adapts gorilla/websocket to relay.Conn interface.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements relay.Conn.
// Cancelling ctx closes the connection to unblock the read.
func (c *Conn) Read(ctx context.Context) (protocol.Frame, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Frame{}, ctx.Err()
		}
		return protocol.Frame{}, err
	}

	switch messageType {
	case websocket.TextMessage:
		return protocol.Frame{Type: protocol.FrameText, Data: data}, nil
	case websocket.BinaryMessage:
		return protocol.Frame{Type: protocol.FrameBinary, Data: data}, nil
	default:
		return protocol.Frame{}, fmt.Errorf("unexpected message type %d", messageType)
	}
}

// Write implements relay.Conn.
func (c *Conn) Write(ctx context.Context, frame protocol.Frame) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}

	messageType := websocket.TextMessage
	if frame.Type == protocol.FrameBinary {
		messageType = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(messageType, frame.Data)
}

// Close implements relay.Conn.
// A normal-closure frame is attempted before the socket is closed.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

// RemoteAddr implements relay.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
