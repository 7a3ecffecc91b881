// Package dispatch routes envelopes to handlers keyed by event name.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/omochice/event-relay/pkg/protocol"
)

var ErrNoHandler = errors.New("dispatch: no handler for event")

// HandlerFunc handles one inbound envelope.
type HandlerFunc func(ctx context.Context, env protocol.Envelope) error

// Dispatcher maps topics to handlers with an optional wildcard fallback.
// Handlers run synchronously on the goroutine calling Dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	wildcard HandlerFunc
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
	}
}

// On registers fn for topic, replacing any previous handler.
func (d *Dispatcher) On(topic string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = fn
}

// OnAny registers the handler used when no topic handler matches.
func (d *Dispatcher) OnAny(fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wildcard = fn
}

// Dispatch invokes the handler for env.Name, falling back to the wildcard.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Envelope) error {
	d.mu.RLock()
	fn, ok := d.handlers[env.Name]
	if !ok {
		fn = d.wildcard
	}
	d.mu.RUnlock()

	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNoHandler, env.Name)
	}
	return fn(ctx, env)
}
