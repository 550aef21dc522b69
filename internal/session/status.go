package session

import (
	"errors"
	"fmt"
)

// Status is the connection lifecycle state of this process. A host moves
// NoConnection -> ServerRunning; a client moves NoConnection -> Connecting ->
// Authenticating -> ConnectedToServer. Both return to NoConnection.
type Status int

const (
	NoConnection Status = iota
	ServerRunning
	Connecting
	Authenticating
	ConnectedToServer
)

func (s Status) String() string {
	switch s {
	case NoConnection:
		return "NoConnection"
	case ServerRunning:
		return "ServerRunning"
	case Connecting:
		return "Connecting"
	case Authenticating:
		return "Authenticating"
	case ConnectedToServer:
		return "ConnectedToServer"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// IsMultiplayerReady reports whether a session is fully established.
func (s Status) IsMultiplayerReady() bool {
	return s == ServerRunning || s == ConnectedToServer
}

// IsAuthoritative reports whether this process owns the game state: offline
// or hosting.
func (s Status) IsAuthoritative() bool { return s <= ServerRunning }

// IsHost reports whether this process runs the session.
func (s Status) IsHost() bool { return s == ServerRunning }

// IsClient reports whether this process has reached a host.
func (s Status) IsClient() bool { return s > Connecting }

// isClientSide reports every state owned by the client path.
func (s Status) isClientSide() bool { return s >= Connecting }

// ErrInvalidOperation is returned when an operation is not allowed in the
// current status.
var ErrInvalidOperation = errors.New("invalid operation")

func invalid(op string, status Status) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidOperation, op, status)
}

// TransportError wraps a failure reported by the transport. The session stays
// in, or returns to, NoConnection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
