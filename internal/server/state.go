package server

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoFreeSlot        = errors.New("no free connection slot")
	ErrStaleHandle       = errors.New("stale connection handle")
	ErrInvalidTransition = errors.New("invalid connection state transition")
	ErrUnknownEvent      = errors.New("unknown connection event")
	ErrNegativeAck       = errors.New("negative acknowledged byte count")
)

// State is the lifecycle position of one connection.
type State int

const (
	// StateFree marks an unused slot. Handles never report it.
	StateFree State = iota
	StateAccepted
	StateReceiving
	StateResponding
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateAccepted:
		return "accepted"
	case StateReceiving:
		return "receiving"
	case StateResponding:
		return "responding"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind is what a transport reports about a connection.
type EventKind int

const (
	EventAccepted EventKind = iota
	EventDataReceived
	EventSendProgress
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventAccepted:
		return "accepted"
	case EventDataReceived:
		return "data_received"
	case EventSendProgress:
		return "send_progress"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single transport notification.
type Event struct {
	Kind EventKind

	// Conn is set for EventAccepted.
	Conn Conn

	// Handle is set for every other kind.
	Handle Handle

	// Payload is the first segment of the request for EventDataReceived.
	// A nil payload means the peer closed.
	Payload []byte

	// Acked is the byte count newly acknowledged for EventSendProgress.
	Acked int
}

// Conn is the transport half of one connection. Calls happen on the
// goroutine driving the Server. Write and Output may report progress
// back into the Server before they return.
type Conn interface {
	// Write queues p for transmission. Implementations copy p; the
	// caller reuses it once Write returns.
	Write(p []byte) error

	// Output asks the transport to start sending queued bytes now.
	Output() error

	// Close closes the connection after queued bytes are sent.
	Close() error

	// Reset closes the connection at once, dropping anything still
	// queued. It must not wait on the peer.
	Reset() error
}

// closeReason is attached to logs, spans and metrics when a slot is
// released.
type closeReason string

const (
	reasonDrained     closeReason = "drained"
	reasonPeerClosed  closeReason = "peer_closed"
	reasonWriteFailed closeReason = "write_failed"
	reasonTimeout     closeReason = "timeout"
	reasonAborted     closeReason = "aborted"
	reasonEmpty       closeReason = "empty_response"
)

// expired reports whether the slot's deadline passed at now.
func (sl *slot) expired(now time.Time) bool {
	return !sl.deadline.IsZero() && now.After(sl.deadline)
}
