package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/event-relay/internal/dispatch"
	"github.com/omochice/event-relay/pkg/protocol"
)

var (
	ErrNotConnected  = errors.New("client: not connected to server")
	ErrManagerClosed = errors.New("client: manager closed")
)

// eventBufferSize is how many events may wait on Events before the
// connection goroutine blocks.
const eventBufferSize = 64

// Option configures a Manager.
type Option func(*Manager)

// WithCodec selects the frame codec for outbound envelopes.
func WithCodec(c protocol.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithEventLog makes the manager append echoes to log.
func WithEventLog(log *EventLog) Option {
	return func(m *Manager) { m.log = log }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the receive-timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// connection is one client-side session.
type connection struct {
	id         string
	lifecycle  protocol.Lifecycle
	ctx        context.Context
	cancel     context.CancelFunc
	dispatcher *dispatch.Dispatcher
	writeMu    sync.Mutex

	// guarded by Manager.mu
	transport Transport
	cause     error
}

// Manager owns at most one live connection to the relay. Reconnection is
// never automatic; callers invoke Connect again after a Closed status.
type Manager struct {
	url    string
	dialer Dialer
	codec  protocol.Codec
	log    *EventLog
	logger *slog.Logger
	now    func() time.Time

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu     sync.Mutex
	active *connection
	closed bool
}

// NewManager creates a Manager for url. No connection is made until Connect.
func NewManager(url string, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		url:    url,
		dialer: dialer,
		codec:  protocol.JSON,
		log:    NewEventLog(),
		logger: slog.Default(),
		now:    time.Now,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a new connection unless one is already connecting or open,
// in which case it does nothing. The dial happens in the background; its
// outcome is reported on Events.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.active != nil && m.active.lifecycle.Status() != protocol.StatusClosed {
		m.mu.Unlock()
		return nil
	}

	c := m.newConnection()
	m.active = c
	m.wg.Add(1)
	m.mu.Unlock()

	m.publish(StatusEvent{ConnectionID: c.id, Status: protocol.StatusConnecting})
	go m.run(c)
	return nil
}

// Disconnect closes the active connection, if any. Status is Closed when it
// returns; the StatusEvent follows asynchronously.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.active
	m.mu.Unlock()

	if c != nil {
		m.closeConnection(c, nil)
	}
}

// Close disconnects, waits for the connection goroutine and closes Events.
// The manager cannot be reused.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		c := m.active
		m.mu.Unlock()

		if c != nil {
			m.closeConnection(c, nil)
		}
		close(m.done)
		m.wg.Wait()
		close(m.events)
	})
}

// Status returns the active connection's state, or Closed when there is none.
func (m *Manager) Status() protocol.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return protocol.StatusClosed
	}
	return m.active.lifecycle.Status()
}

// ConnectionID returns the active connection's id, or "" when there is none.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

// Log returns the event log echoes are appended to.
func (m *Manager) Log() *EventLog {
	return m.log
}

// Events returns the channel of status changes and echoes. It must be
// drained; it is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Send writes env on the open connection. Nothing is written unless the
// status is Open.
func (m *Manager) Send(ctx context.Context, env protocol.Envelope) error {
	m.mu.Lock()
	c := m.active
	var t Transport
	if c != nil && c.lifecycle.Status() == protocol.StatusOpen {
		t = c.transport
	}
	m.mu.Unlock()

	if t == nil {
		return ErrNotConnected
	}

	frame, err := protocol.EncodeFrame(m.codec, env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := t.Write(ctx, frame); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (m *Manager) newConnection() *connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		dispatcher: dispatch.New(),
	}
	c.dispatcher.On(protocol.EchoEvent, m.onEcho(c))
	c.dispatcher.OnAny(func(ctx context.Context, env protocol.Envelope) error {
		m.logger.Debug("ignoring unexpected event", "id", c.id, "event", env.Name)
		return nil
	})
	return c
}

// run drives one connection from dial to close. Every StatusEvent after
// Connecting is published from here, so they arrive in transition order.
func (m *Manager) run(c *connection) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		cause := c.cause
		m.mu.Unlock()
		m.publish(StatusEvent{ConnectionID: c.id, Status: protocol.StatusClosed, Err: cause})
	}()

	t, err := m.dialer.Dial(c.ctx, m.url)
	if err != nil {
		if m.closeConnection(c, fmt.Errorf("failed to connect to server: %w", err)) {
			m.logger.Error("connection error", "id", c.id, "url", m.url, "err", err)
		}
		return
	}

	m.mu.Lock()
	err = c.lifecycle.Transition(protocol.StatusOpen)
	if err == nil {
		c.transport = t
	}
	m.mu.Unlock()
	if err != nil {
		t.Close()
		return
	}

	m.logger.Info("connected to server", "id", c.id, "url", m.url)
	m.publish(StatusEvent{ConnectionID: c.id, Status: protocol.StatusOpen})

	err = m.readLoop(c, t)
	if m.closeConnection(c, err) {
		m.logger.Warn("connection lost", "id", c.id, "err", err)
	}
	m.logger.Info("disconnected from server", "id", c.id)
}

// closeConnection moves c to Closed once. It reports whether this call did
// the transition.
func (m *Manager) closeConnection(c *connection, cause error) bool {
	m.mu.Lock()
	if err := c.lifecycle.Transition(protocol.StatusClosed); err != nil {
		m.mu.Unlock()
		return false
	}
	c.cause = cause
	if m.active == c {
		m.active = nil
	}
	t := c.transport
	m.mu.Unlock()

	if t != nil {
		t.Close()
	}
	c.cancel()
	return true
}

func (m *Manager) readLoop(c *connection, t Transport) error {
	for {
		frame, err := t.Read(c.ctx)
		if err != nil {
			return err
		}

		env, _, err := protocol.DecodeFrame(frame)
		if err != nil {
			m.logger.Warn("dropping malformed frame", "id", c.id, "err", err)
			continue
		}

		if err := c.dispatcher.Dispatch(c.ctx, env); err != nil {
			m.logger.Warn("failed to handle event", "id", c.id, "event", env.Name, "err", err)
		}
	}
}

func (m *Manager) onEcho(c *connection) dispatch.HandlerFunc {
	return func(ctx context.Context, env protocol.Envelope) error {
		inner, err := protocol.ParseEcho(env)
		if err != nil {
			return err
		}

		entry := LogEntry{Envelope: inner, ReceivedAt: m.now()}
		m.log.Append(entry)
		m.publish(EchoEvent{ConnectionID: c.id, Entry: entry})
		return nil
	}
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}
