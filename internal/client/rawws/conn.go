// Package rawws provides a low-level WebSocket dialer for the relay client,
// built on gobwas/ws. It keeps the handshake and framing in the caller's
// goroutine with no per-connection buffers beyond the bufio handshake reader.
package rawws

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/pkg/protocol"
)

const closeGracePeriod = time.Second

// Dialer dials the relay with gobwas/ws.
type Dialer struct {
	Dialer ws.Dialer
}

// New returns a Dialer using gobwas defaults.
func New() *Dialer {
	return &Dialer{Dialer: ws.DefaultDialer}
}

// Dial implements client.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (client.Transport, error) {
	conn, br, _, err := d.Dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	var r io.Reader = conn
	if br != nil {
		// the server may have sent frames right after the handshake
		r = br
	}
	return &Conn{conn: conn, reader: r}, nil
}

// Conn is a client.Transport over a raw net.Conn speaking WebSocket framing.
type Conn struct {
	conn   net.Conn
	reader io.Reader

	mu        sync.Mutex // serializes frame writes
	closeOnce sync.Once
	closeErr  error
}

// Read implements client.Transport.
// Pings are answered and a close frame from the server ends the read with an
// error.
func (c *Conn) Read(ctx context.Context) (protocol.Frame, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	data, op, err := wsutil.ReadServerData(controlRW{c})
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Frame{}, ctx.Err()
		}
		return protocol.Frame{}, err
	}

	if op == ws.OpBinary {
		return protocol.Frame{Type: protocol.FrameBinary, Data: data}, nil
	}
	return protocol.Frame{Type: protocol.FrameText, Data: data}, nil
}

// Write implements client.Transport.
func (c *Conn) Write(ctx context.Context, frame protocol.Frame) error {
	op := ws.OpText
	if frame.Type == protocol.FrameBinary {
		op = ws.OpBinary
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientMessage(c.conn, op, frame.Data)
}

// Close implements client.Transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.mu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// controlRW lets wsutil answer control frames while Write may be running.
// Control replies are written in a single call, so locking each Write keeps
// frames whole.
type controlRW struct {
	c *Conn
}

func (rw controlRW) Read(p []byte) (int, error) {
	return rw.c.reader.Read(p)
}

func (rw controlRW) Write(p []byte) (int, error) {
	rw.c.mu.Lock()
	defer rw.c.mu.Unlock()
	return rw.c.conn.Write(p)
}
