// Package bus layers typed message handlers over a Transport. Every payload is
// a protocol message; handlers are registered per message type together with
// the direction the message is allowed to travel.
package bus

import (
	"errors"
	"fmt"

	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/protocol"
	"driftpursuit/netplay/internal/transport"
)

// Direction restricts which senders a handler accepts.
type Direction int

const (
	// FromHost accepts messages only when they were sent by the host.
	FromHost Direction = iota + 1
	// FromClients accepts messages only on the host, from any client.
	FromClients
)

func (d Direction) String() string {
	switch d {
	case FromHost:
		return "from_host"
	case FromClients:
		return "from_clients"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ErrWrongDirection reports a message that arrived from a sender its handler refuses.
var ErrWrongDirection = errors.New("message not accepted from sender")

type routeKey struct {
	tag       protocol.Tag
	direction Direction
}

type route func(from transport.PeerID, fields []byte) error

// Bus routes decoded messages to typed handlers and encodes outgoing ones.
type Bus struct {
	transport transport.Transport
	log       *logging.Logger
	routes    map[routeKey]route
	tags      map[protocol.Tag]struct{}
	metrics   *Metrics
}

// New wraps tr. Handlers are registered with Handle before the first Dispatch.
func New(tr transport.Transport, logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.L()
	}
	return &Bus{
		transport: tr,
		log:       logger.With(logging.String("component", "bus")),
		routes:    make(map[routeKey]route),
		tags:      make(map[protocol.Tag]struct{}),
		metrics:   NewMetrics(),
	}
}

// Handle registers fn for every message of type T travelling in direction.
// A type may have one handler per direction; registering the same pair twice
// is a programming error and panics.
func Handle[T any, PT interface {
	*T
	protocol.Message
}](b *Bus, direction Direction, fn func(from transport.PeerID, msg PT)) {
	key := routeKey{tag: PT(new(T)).Tag(), direction: direction}
	if _, exists := b.routes[key]; exists {
		panic(fmt.Sprintf("bus: duplicate handler for %s %s", key.tag, direction))
	}
	b.tags[key.tag] = struct{}{}
	b.routes[key] = func(from transport.PeerID, fields []byte) error {
		msg := PT(new(T))
		if err := msg.UnmarshalFields(fields); err != nil {
			return err
		}
		fn(from, msg)
		return nil
	}
}

// SendTo delivers msg to a single peer, or to every peer for transport.Broadcast.
func (b *Bus) SendTo(peer transport.PeerID, msg protocol.Message) error {
	payload := protocol.Encode(msg)
	if err := b.transport.Send(peer, payload); err != nil {
		return fmt.Errorf("send %s to %d: %w", msg.Tag(), peer, err)
	}
	b.metrics.observeSent(msg.Tag(), len(payload))
	return nil
}

// SendToHost delivers msg to the host.
func (b *Bus) SendToHost(msg protocol.Message) error {
	return b.SendTo(transport.HostID, msg)
}

// Broadcast delivers msg to every connected peer.
func (b *Bus) Broadcast(msg protocol.Message) error {
	return b.SendTo(transport.Broadcast, msg)
}

// Dispatch decodes payload and invokes the matching handler. Unknown,
// undecodable and misdirected messages are dropped and logged; the returned
// error only informs the caller.
func (b *Bus) Dispatch(from transport.PeerID, payload []byte) error {
	tag, fields, err := protocol.PeekTag(payload)
	if err != nil {
		b.metrics.observeDropped(tag)
		b.log.Warn("dropping undecodable packet", logging.Int32("from", int32(from)), logging.Error(err))
		return err
	}
	if _, ok := b.tags[tag]; !ok {
		b.metrics.observeDropped(tag)
		b.log.Debug("no handler for message", logging.Int32("from", int32(from)), logging.Stringer("tag", tag))
		return fmt.Errorf("%w: %s", protocol.ErrUnknownTag, tag)
	}
	direction := b.directionOf(from)
	r, ok := b.routes[routeKey{tag: tag, direction: direction}]
	if !ok {
		b.metrics.observeDropped(tag)
		b.log.Warn("dropping misdirected message",
			logging.Int32("from", int32(from)),
			logging.Stringer("tag", tag),
			logging.Stringer("direction", direction),
		)
		return fmt.Errorf("%w: %s from %d", ErrWrongDirection, tag, from)
	}
	if err := r(from, fields); err != nil {
		b.metrics.observeDropped(tag)
		b.log.Warn("dropping malformed message", logging.Int32("from", int32(from)), logging.Stringer("tag", tag), logging.Error(err))
		return err
	}
	b.metrics.observeReceived(tag, len(payload))
	return nil
}

// Metrics exposes the per-tag traffic counters.
func (b *Bus) Metrics() *Metrics {
	return b.metrics
}

// directionOf classifies a sender relative to this process. Clients only hear
// from the host and the host only from clients; anything else has no direction.
func (b *Bus) directionOf(from transport.PeerID) Direction {
	isHost := b.transport.LocalID() == transport.HostID
	switch {
	case isHost && from != transport.HostID:
		return FromClients
	case !isHost && from == transport.HostID:
		return FromHost
	default:
		return 0
	}
}
