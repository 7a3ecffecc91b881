package protocol

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state of a Connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var ErrInvalidTransition = errors.New("protocol: invalid status transition")

// CanTransition reports whether s may move to next.
// Closed is terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusConnecting:
		return next == StatusOpen || next == StatusClosed
	case StatusOpen:
		return next == StatusClosed
	default:
		return false
	}
}

// Lifecycle holds a Status and enforces its transitions. The zero value is
// Connecting.
type Lifecycle struct {
	mu     sync.Mutex
	status Status
}

// Status returns the current state.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Transition moves to next or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(next Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, next)
	}
	l.status = next
	return nil
}
