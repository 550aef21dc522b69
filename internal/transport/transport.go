// Package transport defines the peer-to-peer channel the session core runs on and
// ships two implementations: an in-memory Network for tests and single-process
// play, and a WebSocket star topology for real sessions.
package transport

import (
	"errors"
	"fmt"
	"sync"
)

// PeerID identifies one process in a session. The host is always HostID.
type PeerID int32

const (
	// Broadcast addresses every connected peer when passed to Send.
	Broadcast PeerID = 0
	// HostID is the identity of the listening process.
	HostID PeerID = 1
	// Unassigned marks a process that is not part of a session.
	Unassigned PeerID = -1
)

var (
	// ErrAlreadyOpen is returned by Listen or Dial on a transport that is already in use.
	ErrAlreadyOpen = errors.New("transport already open")
	// ErrNotOpen is returned by Send when no session is established.
	ErrNotOpen = errors.New("transport not open")
	// ErrAddressInUse signals that another host already listens on the port.
	ErrAddressInUse = errors.New("address already in use")
	// ErrInvalidAddress rejects empty or malformed dial targets.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrUnknownPeer is returned when Send targets an id that is not connected.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrNotRoutable is returned when a client addresses anyone but the host.
	ErrNotRoutable = errors.New("clients may only address the host")
)

// EventKind enumerates the notifications a transport raises.
type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventConnectFailed
	EventServerDisconnected
	EventPeerConnected
	EventPeerDisconnected
	EventPacket
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect_failed"
	case EventServerDisconnected:
		return "server_disconnected"
	case EventPeerConnected:
		return "peer_connected"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventPacket:
		return "packet"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one queued notification. Peer carries the joining/leaving peer or the
// packet sender; Payload is only set for EventPacket.
type Event struct {
	Kind    EventKind
	Peer    PeerID
	Payload []byte
	Err     error
}

// Transport is the reliable, per-destination ordered channel consumed by the
// session core. Implementations never invoke callbacks: events are queued and
// handed over by Drain on the simulation goroutine.
type Transport interface {
	// Listen binds the transport as the session host. Bind failures are returned
	// immediately.
	Listen(port int) error
	// Dial starts an asynchronous connection to a host. Immediate failures are
	// returned; later ones surface as EventConnectFailed.
	Dial(address string, port int) error
	// Close tears down the session. No events from it are delivered afterwards.
	Close() error
	// Send delivers payload to one peer, or every peer when to is Broadcast.
	Send(to PeerID, payload []byte) error
	// Drain returns and clears every event queued since the previous call.
	Drain() []Event
	// LocalID reports the identity assigned to this process.
	LocalID() PeerID
}

// eventQueue is an unbounded FIFO shared between network goroutines and the
// simulation goroutine.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

func (q *eventQueue) reset() {
	q.mu.Lock()
	q.events = nil
	q.mu.Unlock()
}
