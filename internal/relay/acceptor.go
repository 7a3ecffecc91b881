package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/event-relay/pkg/protocol"
)

// Acceptor runs the echo protocol on accepted connections: every event a
// peer sends is returned to that same peer as ("eventEcho", {name, args}).
type Acceptor struct {
	hub    *Hub
	logger *slog.Logger

	mu       sync.Mutex // guards stopping and wg.Add
	stopping bool
	wg       sync.WaitGroup
}

var ErrAcceptorStopped = errors.New("relay: acceptor stopped")

// NewAcceptor creates an Acceptor that registers sessions in hub.
// A nil logger means slog.Default().
func NewAcceptor(hub *Hub, logger *slog.Logger) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acceptor{
		hub:    hub,
		logger: logger,
	}
}

// Serve owns conn until the peer disconnects or ctx is done. It returns the
// error that ended the session.
func (a *Acceptor) Serve(ctx context.Context, conn Conn) error {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		conn.Close()
		return ErrAcceptorStopped
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newConnection(uuid.NewString(), conn)
	c.OnAny(a.echo(c))
	if err := c.lifecycle.Transition(protocol.StatusOpen); err != nil {
		conn.Close()
		return err
	}

	if err := a.hub.Register(c); err != nil {
		c.lifecycle.Transition(protocol.StatusClosed)
		conn.Close()
		return err
	}
	a.logger.Info("client connected", "id", c.ID(), "remote", conn.RemoteAddr())

	go a.writeLoop(ctx, c)
	err := a.readLoop(ctx, c)

	c.shutdown()
	a.hub.Unregister(c)
	a.logger.Info("client disconnected", "id", c.ID())

	return err
}

// Shutdown refuses new sessions, closes the open ones and waits for them to
// end.
func (a *Acceptor) Shutdown() {
	a.mu.Lock()
	a.stopping = true
	a.mu.Unlock()

	a.hub.CloseAll()
	a.wg.Wait()
}

func (a *Acceptor) echo(c *Connection) func(ctx context.Context, env protocol.Envelope) error {
	return func(ctx context.Context, env protocol.Envelope) error {
		a.logger.Info("received event", "id", c.ID(), "event", env.Name, "args", env.Args)
		return c.Emit(ctx, protocol.NewEcho(env))
	}
}

func (a *Acceptor) readLoop(ctx context.Context, c *Connection) error {
	for {
		frame, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		env, codec, err := protocol.DecodeFrame(frame)
		if err != nil {
			a.logger.Warn("dropping malformed frame", "id", c.ID(), "frame", frame.Type, "err", err)
			continue
		}
		c.setCodec(codec)

		if err := c.dispatcher.Dispatch(ctx, env); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				return err
			}
			a.logger.Error("failed to handle event", "id", c.ID(), "event", env.Name, "err", err)
		}
	}
}

func (a *Acceptor) writeLoop(ctx context.Context, c *Connection) {
	defer close(c.writerDone)
	for frame := range c.outgoing {
		if err := c.conn.Write(ctx, frame); err != nil {
			a.logger.Error("failed to write to client", "id", c.ID(), "err", err)
			c.conn.Close()
			return
		}
	}
}
