package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/event-relay/internal/client"
	"github.com/omochice/event-relay/pkg/protocol"
)

// fakeTransport behaves like the relay: every frame written is answered
// with its echo in the same codec.
type fakeTransport struct {
	reads     chan protocol.Frame
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:  make(chan protocol.Frame, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) (protocol.Frame, error) {
	select {
	case frame := <-f.reads:
		return frame, nil
	case <-f.closed:
		return protocol.Frame{}, io.EOF
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, frame protocol.Frame) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}

	env, codec, err := protocol.DecodeFrame(frame)
	if err != nil {
		return err
	}
	reply, err := protocol.EncodeFrame(codec, protocol.NewEcho(env))
	if err != nil {
		return err
	}
	f.reads <- reply
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// fakeDialer hands out fakeTransports. When gate is set, Dial blocks until
// gate is closed or ctx is done.
type fakeDialer struct {
	gate  chan struct{}
	err   error
	dials atomic.Int32

	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (client.Transport, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	t := newFakeTransport()
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t, nil
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[len(d.transports)-1]
}

func newManager(t *testing.T, dialer client.Dialer, opts ...client.Option) *client.Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := client.NewManager("ws://relay.test/ws", dialer, append([]client.Option{client.WithLogger(logger)}, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func nextEvent(t *testing.T, m *client.Manager) client.Event {
	t.Helper()
	select {
	case ev, ok := <-m.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

func expectStatus(t *testing.T, m *client.Manager, want protocol.Status) client.StatusEvent {
	t.Helper()
	ev, ok := nextEvent(t, m).(client.StatusEvent)
	if !ok {
		t.Fatalf("got %T, want StatusEvent", ev)
	}
	if ev.Status != want {
		t.Fatalf("status event = %v, want %v", ev.Status, want)
	}
	return ev
}

func expectEcho(t *testing.T, m *client.Manager) client.EchoEvent {
	t.Helper()
	ev, ok := nextEvent(t, m).(client.EchoEvent)
	if !ok {
		t.Fatalf("got %T, want EchoEvent", ev)
	}
	return ev
}

func TestManager_ConnectSendEchoDisconnect(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	m := newManager(t, &fakeDialer{}, client.WithClock(func() time.Time { return now }))

	if m.Status() != protocol.StatusClosed {
		t.Errorf("Status() before Connect = %v, want CLOSED", m.Status())
	}

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	connecting := expectStatus(t, m, protocol.StatusConnecting)
	open := expectStatus(t, m, protocol.StatusOpen)
	if connecting.ConnectionID == "" || connecting.ConnectionID != open.ConnectionID {
		t.Errorf("connection ids = %q, %q", connecting.ConnectionID, open.ConnectionID)
	}
	if m.ConnectionID() != open.ConnectionID {
		t.Errorf("ConnectionID() = %q, want %q", m.ConnectionID(), open.ConnectionID)
	}

	env := protocol.Envelope{Name: "message", Args: []any{"hello"}}
	if err := m.Send(context.Background(), env); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	echo := expectEcho(t, m)
	if echo.Entry.Envelope.Name != "message" {
		t.Errorf("echo name = %q, want message", echo.Entry.Envelope.Name)
	}
	if len(echo.Entry.Envelope.Args) != 1 || echo.Entry.Envelope.Args[0] != "hello" {
		t.Errorf("echo args = %#v", echo.Entry.Envelope.Args)
	}
	if !echo.Entry.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", echo.Entry.ReceivedAt, now)
	}
	if m.Log().Len() != 1 {
		t.Errorf("log length = %d, want 1", m.Log().Len())
	}

	m.Disconnect()
	if m.Status() != protocol.StatusClosed {
		t.Errorf("Status() after Disconnect = %v, want CLOSED", m.Status())
	}
	closed := expectStatus(t, m, protocol.StatusClosed)
	if closed.Err != nil {
		t.Errorf("requested disconnect reported error %v", closed.Err)
	}
}

func TestManager_EchoesArriveInSendOrder(t *testing.T) {
	m := newManager(t, &fakeDialer{})
	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)

	names := []string{"a", "b", "c"}
	for _, name := range names {
		if err := m.Send(context.Background(), protocol.Envelope{Name: name}); err != nil {
			t.Fatalf("Send(%s) error = %v", name, err)
		}
	}
	for _, want := range names {
		if got := expectEcho(t, m).Entry.Envelope.Name; got != want {
			t.Errorf("echo = %q, want %q", got, want)
		}
	}

	entries := m.Log().Entries()
	for i, want := range names {
		if entries[i].Envelope.Name != want {
			t.Errorf("log[%d] = %q, want %q", i, entries[i].Envelope.Name, want)
		}
	}
}

func TestManager_ConnectIsNoOpWhileConnecting(t *testing.T) {
	dialer := &fakeDialer{gate: make(chan struct{})}
	m := newManager(t, dialer)

	m.Connect()
	first := expectStatus(t, m, protocol.StatusConnecting)
	if err := m.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if m.Status() != protocol.StatusConnecting {
		t.Errorf("Status() = %v, want CONNECTING", m.Status())
	}
	if m.ConnectionID() != first.ConnectionID {
		t.Errorf("ConnectionID() = %q, want %q", m.ConnectionID(), first.ConnectionID)
	}

	close(dialer.gate)
	expectStatus(t, m, protocol.StatusOpen)

	if err := m.Connect(); err != nil {
		t.Fatalf("Connect() while open error = %v", err)
	}
	if got := dialer.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestManager_SendWhileClosed(t *testing.T) {
	dialer := &fakeDialer{}
	m := newManager(t, dialer)

	err := m.Send(context.Background(), protocol.Envelope{Name: "message"})
	if !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("Send() error = %v, want %v", err, client.ErrNotConnected)
	}

	err = client.NewComposer(m).Submit(context.Background(), "message", "hello")
	if !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("Submit() error = %v, want %v", err, client.ErrNotConnected)
	}
	if dialer.dials.Load() != 0 {
		t.Error("sending while closed must not dial")
	}
	if m.Log().Len() != 0 {
		t.Errorf("log length = %d, want 0", m.Log().Len())
	}
}

func TestManager_SendWhileConnecting(t *testing.T) {
	m := newManager(t, &fakeDialer{gate: make(chan struct{})})
	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)

	err := m.Send(context.Background(), protocol.Envelope{Name: "message"})
	if !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("Send() error = %v, want %v", err, client.ErrNotConnected)
	}
}

func TestManager_DialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	m := newManager(t, &fakeDialer{err: dialErr})

	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	closed := expectStatus(t, m, protocol.StatusClosed)
	if !errors.Is(closed.Err, dialErr) {
		t.Errorf("Err = %v, want %v", closed.Err, dialErr)
	}
	if m.Status() != protocol.StatusClosed {
		t.Errorf("Status() = %v, want CLOSED", m.Status())
	}
}

func TestManager_DisconnectWhileConnecting(t *testing.T) {
	m := newManager(t, &fakeDialer{gate: make(chan struct{})})

	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	m.Disconnect()

	if m.Status() != protocol.StatusClosed {
		t.Errorf("Status() = %v, want CLOSED", m.Status())
	}
	closed := expectStatus(t, m, protocol.StatusClosed)
	if closed.Err != nil {
		t.Errorf("Err = %v, want nil", closed.Err)
	}
}

func TestManager_PeerClose(t *testing.T) {
	dialer := &fakeDialer{}
	m := newManager(t, dialer)

	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)

	dialer.last().Close()

	closed := expectStatus(t, m, protocol.StatusClosed)
	if closed.Err == nil {
		t.Error("expected error for connection lost")
	}
	if m.Status() != protocol.StatusClosed {
		t.Errorf("Status() = %v, want CLOSED", m.Status())
	}
}

func TestManager_ReconnectUsesNewConnection(t *testing.T) {
	dialer := &fakeDialer{}
	m := newManager(t, dialer)

	m.Connect()
	first := expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)
	m.Send(context.Background(), protocol.Envelope{Name: "before"})
	expectEcho(t, m)

	m.Disconnect()
	expectStatus(t, m, protocol.StatusClosed)

	if err := m.Connect(); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	second := expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)
	if second.ConnectionID == first.ConnectionID {
		t.Error("reconnect reused the connection id")
	}

	m.Send(context.Background(), protocol.Envelope{Name: "after"})
	echo := expectEcho(t, m)
	if echo.ConnectionID != second.ConnectionID {
		t.Errorf("echo connection = %q, want %q", echo.ConnectionID, second.ConnectionID)
	}

	entries := m.Log().Entries()
	if len(entries) != 2 || entries[0].Envelope.Name != "before" || entries[1].Envelope.Name != "after" {
		t.Errorf("log = %+v, want [before after]", entries)
	}
	if dialer.dials.Load() != 2 {
		t.Errorf("dials = %d, want 2", dialer.dials.Load())
	}
}

func TestManager_IgnoresMalformedAndForeignFrames(t *testing.T) {
	dialer := &fakeDialer{}
	m := newManager(t, dialer)

	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)

	tr := dialer.last()
	tr.reads <- protocol.Frame{Type: protocol.FrameText, Data: []byte("not json")}
	tr.reads <- protocol.Frame{Type: protocol.FrameText, Data: []byte(`{"name":"other","args":[]}`)}
	tr.reads <- protocol.Frame{Type: protocol.FrameText, Data: []byte(`{"name":"eventEcho","args":["bad"]}`)}

	m.Send(context.Background(), protocol.Envelope{Name: "good"})
	if got := expectEcho(t, m).Entry.Envelope.Name; got != "good" {
		t.Errorf("echo = %q, want good", got)
	}
	if m.Log().Len() != 1 {
		t.Errorf("log length = %d, want 1", m.Log().Len())
	}
}

func TestManager_ProtoCodec(t *testing.T) {
	m := newManager(t, &fakeDialer{}, client.WithCodec(protocol.Proto))
	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)

	payload := map[string]any{"x": 1.0}
	if err := m.Send(context.Background(), protocol.Envelope{Name: "bin", Args: []any{payload}}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	echo := expectEcho(t, m)
	if echo.Entry.Envelope.Name != "bin" {
		t.Errorf("echo name = %q, want bin", echo.Entry.Envelope.Name)
	}
	got, ok := echo.Entry.Envelope.Args[0].(map[string]any)
	if !ok || got["x"] != 1.0 {
		t.Errorf("echo args = %#v", echo.Entry.Envelope.Args)
	}
}

func TestManager_Close(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := client.NewManager("ws://relay.test/ws", &fakeDialer{}, client.WithLogger(logger))

	m.Connect()
	expectStatus(t, m, protocol.StatusConnecting)
	expectStatus(t, m, protocol.StatusOpen)

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()

	drained := make(chan struct{})
	go func() {
		for range m.Events() {
		}
		close(drained)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}

	if err := m.Connect(); !errors.Is(err, client.ErrManagerClosed) {
		t.Errorf("Connect() after Close error = %v, want %v", err, client.ErrManagerClosed)
	}
	m.Close()
}
