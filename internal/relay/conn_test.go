package relay_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omochice/event-relay/internal/relay"
	"github.com/omochice/event-relay/pkg/protocol"
)

// mockConn is a mock implementation of relay.Conn for testing.
type mockConn struct {
	readCh     chan protocol.Frame
	writeCh    chan protocol.Frame
	writeErr   error
	closeOnce  sync.Once
	closed     chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan protocol.Frame, 10),
		writeCh:    make(chan protocol.Frame, 10),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) (protocol.Frame, error) {
	select {
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	case <-m.closed:
		return protocol.Frame{}, io.EOF
	case f, ok := <-m.readCh:
		if !ok {
			return protocol.Frame{}, io.EOF
		}
		return f, nil
	}
}

func (m *mockConn) Write(ctx context.Context, frame protocol.Frame) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	copied := protocol.Frame{Type: frame.Type, Data: append([]byte(nil), frame.Data...)}
	select {
	case m.writeCh <- copied:
		return nil
	case <-m.closed:
		return io.ErrClosedPipe
	}
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// send feeds a JSON text frame to the acceptor.
func (m *mockConn) send(t *testing.T, env protocol.Envelope) {
	t.Helper()
	frame, err := protocol.EncodeFrame(protocol.JSON, env)
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	m.readCh <- frame
}

// nextEcho waits for the next written frame and unwraps the echo.
func (m *mockConn) nextEcho(t *testing.T) (protocol.Envelope, protocol.FrameType) {
	t.Helper()
	select {
	case f := <-m.writeCh:
		env, _, err := protocol.DecodeFrame(f)
		if err != nil {
			t.Fatalf("failed to decode written frame: %v", err)
		}
		inner, err := protocol.ParseEcho(env)
		if err != nil {
			t.Fatalf("written frame is not an echo: %v", err)
		}
		return inner, f.Type
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for echo")
	}
	return protocol.Envelope{}, 0
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Compile-time check that mockConn implements relay.Conn
var _ relay.Conn = (*mockConn)(nil)
