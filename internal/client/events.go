package client

import "github.com/omochice/event-relay/pkg/protocol"

// Event is delivered on Manager.Events. It is either a StatusEvent or an
// EchoEvent.
type Event interface {
	isEvent()
}

// StatusEvent reports a connection lifecycle transition. Err is set when the
// connection closed because of a dial or transport failure.
type StatusEvent struct {
	ConnectionID string
	Status       protocol.Status
	Err          error
}

// EchoEvent reports an echo that has just been appended to the event log.
type EchoEvent struct {
	ConnectionID string
	Entry        LogEntry
}

func (StatusEvent) isEvent() {}
func (EchoEvent) isEvent()   {}
