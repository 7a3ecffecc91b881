package client

import (
	"sync"
	"time"

	"github.com/omochice/event-relay/pkg/protocol"
)

// LogEntry is one received echo.
type LogEntry struct {
	Envelope   protocol.Envelope
	ReceivedAt time.Time
}

// EventLog is the append-only record of received echoes in arrival order.
// It has no capacity bound.
type EventLog struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewEventLog creates an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append adds entry at the end.
func (l *EventLog) Append(entry LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of every entry in arrival order.
func (l *EventLog) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
