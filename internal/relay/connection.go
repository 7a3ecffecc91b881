package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/omochice/event-relay/internal/dispatch"
	"github.com/omochice/event-relay/pkg/protocol"
)

var ErrConnectionClosed = errors.New("relay: connection closed")

// outgoingQueueSize bounds frames waiting for the write loop.
const outgoingQueueSize = 16

// Connection is one accepted transport session.
type Connection struct {
	id         string
	conn       Conn
	lifecycle  protocol.Lifecycle
	dispatcher *dispatch.Dispatcher

	mu       sync.RWMutex
	codec    protocol.Codec
	outgoing chan protocol.Frame

	writerDone chan struct{}
}

func newConnection(id string, conn Conn) *Connection {
	return &Connection{
		id:         id,
		conn:       conn,
		dispatcher: dispatch.New(),
		codec:      protocol.JSON,
		outgoing:   make(chan protocol.Frame, outgoingQueueSize),
		writerDone: make(chan struct{}),
	}
}

// ID returns the identifier assigned on accept.
func (c *Connection) ID() string {
	return c.id
}

// Status returns the connection's lifecycle state.
func (c *Connection) Status() protocol.Status {
	return c.lifecycle.Status()
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr()
}

// On registers a handler for one event name on this connection.
func (c *Connection) On(topic string, fn dispatch.HandlerFunc) {
	c.dispatcher.On(topic, fn)
}

// OnAny registers the catch-all handler for this connection.
func (c *Connection) OnAny(fn dispatch.HandlerFunc) {
	c.dispatcher.OnAny(fn)
}

// Emit queues env for this connection only. It blocks until the frame is
// queued, so emits from one handler reach the peer in call order. Env is
// encoded with the codec of the most recent inbound frame.
func (c *Connection) Emit(ctx context.Context, env protocol.Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lifecycle.Status() != protocol.StatusOpen {
		return ErrConnectionClosed
	}

	frame, err := protocol.EncodeFrame(c.codec, env)
	if err != nil {
		return err
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.writerDone:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying transport, which ends the session.
func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) setCodec(codec protocol.Codec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codec = codec
}

// shutdown moves to Closed and stops the write loop. Queued frames are
// abandoned.
func (c *Connection) shutdown() {
	_ = c.lifecycle.Transition(protocol.StatusClosed)
	c.conn.Close()

	c.mu.Lock()
	close(c.outgoing)
	c.mu.Unlock()

	<-c.writerDone
}
