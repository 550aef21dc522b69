// Package session owns the connection lifecycle: it starts and stops hosting,
// connects and disconnects clients, turns queued transport events into status
// transitions and keeps the player registry consistent with peer joins and
// leaves.
package session

import (
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/transport"
)

// PacketHandler consumes packets drained from the transport.
type PacketHandler func(from transport.PeerID, payload []byte)

type observer struct {
	id int
	fn func(Status)
}

// Manager runs the status machine. Every method must be called from the
// simulation goroutine.
type Manager struct {
	transport transport.Transport
	registry  *roster.Registry
	log       *logging.Logger

	status Status
	owner  bool
	epoch  uint64

	observers        []observer
	nextObserver     int
	onAuthenticating []func(local transport.PeerID)
	onPeerLeft       []func(id transport.PeerID)
	packets          PacketHandler
}

// NewManager wires the manager to its transport and registry.
func NewManager(tr transport.Transport, registry *roster.Registry, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.L()
	}
	return &Manager{
		transport: tr,
		registry:  registry,
		log:       logger.With(logging.String("component", "session")),
		status:    NoConnection,
	}
}

// Status reports the current lifecycle state.
func (m *Manager) Status() Status { return m.status }

// IsMultiplayerReady reports whether hosting or fully connected.
func (m *Manager) IsMultiplayerReady() bool { return m.status.IsMultiplayerReady() }

// IsAuthoritative reports whether this process owns the game state.
func (m *Manager) IsAuthoritative() bool { return m.status.IsAuthoritative() }

// IsHost reports whether this process is hosting.
func (m *Manager) IsHost() bool { return m.status.IsHost() }

// IsClient reports whether this process has reached a host.
func (m *Manager) IsClient() bool { return m.status.IsClient() }

// LocalID reports the identity the transport assigned to this process.
func (m *Manager) LocalID() transport.PeerID {
	if m.status == NoConnection {
		return transport.Unassigned
	}
	return m.transport.LocalID()
}

// Registry exposes the player registry owned by the session.
func (m *Manager) Registry() *roster.Registry { return m.registry }

// Subscribe registers fn for status changes and returns a function that
// removes it. Observers run in registration order.
func (m *Manager) Subscribe(fn func(Status)) (cancel func()) {
	m.nextObserver++
	id := m.nextObserver
	m.observers = append(m.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// OnAuthenticating registers fn to run when the transport reports a
// successful connection. fn receives the assigned local id.
func (m *Manager) OnAuthenticating(fn func(local transport.PeerID)) {
	m.onAuthenticating = append(m.onAuthenticating, fn)
}

// OnPeerLeft registers fn to run after a departed peer's player was removed.
func (m *Manager) OnPeerLeft(fn func(id transport.PeerID)) {
	m.onPeerLeft = append(m.onPeerLeft, fn)
}

// SetPacketHandler routes drained packets to fn.
func (m *Manager) SetPacketHandler(fn PacketHandler) {
	m.packets = fn
}

// StartHosting opens the session on port and registers the local player as
// the host.
func (m *Manager) StartHosting(port int) error {
	if m.status != NoConnection {
		return invalid("start hosting", m.status)
	}
	if err := m.transport.Listen(port); err != nil {
		m.log.Warn("failed to start hosting", logging.Int("port", port), logging.Error(err))
		return &TransportError{Op: "listen", Err: err}
	}
	m.epoch++
	m.owner = true
	local := m.registry.Local()
	if err := m.registry.Add(transport.HostID, local); err != nil {
		_ = m.transport.Close()
		m.owner = false
		return err
	}
	m.log.Info("hosting session", logging.Int("port", port))
	m.setStatus(ServerRunning)
	return nil
}

// StopHosting closes the hosted session.
func (m *Manager) StopHosting() error {
	if m.status != ServerRunning || !m.owner {
		return invalid("stop hosting", m.status)
	}
	m.teardown("stopped hosting")
	return nil
}

// Connect starts joining the host at address:port. Completion is reported by
// later Poll calls.
func (m *Manager) Connect(address string, port int) error {
	if m.status != NoConnection {
		return invalid("connect", m.status)
	}
	if err := m.transport.Dial(address, port); err != nil {
		m.log.Warn("failed to connect", logging.String("address", address), logging.Int("port", port), logging.Error(err))
		return &TransportError{Op: "dial", Err: err}
	}
	m.epoch++
	m.owner = false
	m.log.Info("connecting", logging.String("address", address), logging.Int("port", port))
	m.setStatus(Connecting)
	return nil
}

// Disconnect leaves the session as a client.
func (m *Manager) Disconnect() error {
	if !m.status.isClientSide() {
		return invalid("disconnect", m.status)
	}
	m.teardown("disconnected")
	return nil
}

// ConfirmSpawn completes authentication once the host spawned the local player.
func (m *Manager) ConfirmSpawn() error {
	if m.status != Authenticating {
		return invalid("confirm spawn", m.status)
	}
	m.setStatus(ConnectedToServer)
	return nil
}

// Poll drains queued transport events and applies them in order. It returns
// the number of events handled. Once the session ends mid-batch, the rest of
// the batch is stale and discarded.
func (m *Manager) Poll() int {
	events := m.transport.Drain()
	epoch := m.epoch
	handled := 0
	for _, ev := range events {
		if m.epoch != epoch || m.status == NoConnection {
			break
		}
		m.handle(ev)
		handled++
	}
	return handled
}

func (m *Manager) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		if m.status != Connecting {
			return
		}
		m.setStatus(Authenticating)
		if m.status != Authenticating {
			return
		}
		local := m.transport.LocalID()
		for _, fn := range m.onAuthenticating {
			fn(local)
		}
	case transport.EventConnectFailed:
		if !m.status.isClientSide() {
			return
		}
		m.log.Warn("connection failed", logging.Error(ev.Err))
		m.teardown("connection failed")
	case transport.EventServerDisconnected:
		if !m.status.isClientSide() {
			return
		}
		m.log.Warn("server disconnected", logging.Error(ev.Err))
		m.teardown("server disconnected")
	case transport.EventPeerConnected:
		m.log.Debug("peer connected", logging.Int32("peer", int32(ev.Peer)))
	case transport.EventPeerDisconnected:
		if m.registry.Remove(ev.Peer) {
			m.log.Info("player left", logging.Int32("peer", int32(ev.Peer)))
		}
		for _, fn := range m.onPeerLeft {
			fn(ev.Peer)
		}
	case transport.EventPacket:
		if m.packets != nil {
			m.packets(ev.Peer, ev.Payload)
		}
	}
}

// teardown closes the transport and returns to NoConnection with an empty
// registry. Observers see the cleared registry.
func (m *Manager) teardown(reason string) {
	if err := m.transport.Close(); err != nil {
		m.log.Warn("closing transport", logging.Error(err))
	}
	m.epoch++
	m.owner = false
	m.registry.Clear()
	m.log.Info("session ended", logging.String("reason", reason))
	m.setStatus(NoConnection)
}

func (m *Manager) setStatus(status Status) {
	if m.status == status {
		return
	}
	previous := m.status
	m.status = status
	m.log.Info("status changed", logging.Stringer("from", previous), logging.Stringer("to", status))
	observers := append([]observer(nil), m.observers...)
	for _, o := range observers {
		o.fn(status)
	}
}
