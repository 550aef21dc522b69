// Package handshake runs the authenticate-and-spawn exchange. A connecting
// client announces its name, colour and weapon; the host replays the roster to
// the newcomer, registers it at the spawn point and broadcasts it to everyone.
// The client finishes authenticating when it receives its own spawn.
package handshake

import (
	"driftpursuit/netplay/internal/bus"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/protocol"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/session"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

// Options configures the handshake.
type Options struct {
	// Spawn is where the host places newly authenticated players.
	Spawn physics.Vec2
	// Resolve maps a weapon id announced by a peer to its balance values.
	// Defaults to the embedded arsenal.
	Resolve func(id string) (weapon.Spec, error)
	Logger  *logging.Logger
}

// Handshake wires the exchange into a session and its message bus.
type Handshake struct {
	session  *session.Manager
	bus      *bus.Bus
	registry *roster.Registry
	spawn    physics.Vec2
	resolve  func(id string) (weapon.Spec, error)
	log      *logging.Logger
	onSpawn  []func(roster.View)
}

// New registers the client and host branches on mgr and b.
func New(mgr *session.Manager, b *bus.Bus, opts Options) *Handshake {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = weapon.Lookup
	}
	h := &Handshake{
		session:  mgr,
		bus:      b,
		registry: mgr.Registry(),
		spawn:    opts.Spawn,
		resolve:  resolve,
		log:      logger.With(logging.String("component", "handshake")),
	}
	mgr.OnAuthenticating(h.announce)
	bus.Handle(b, bus.FromClients, h.handleClientAuth)
	bus.Handle(b, bus.FromHost, h.handleSpawn)
	return h
}

// OnSpawn registers fn to observe every player this peer spawns or refreshes.
func (h *Handshake) OnSpawn(fn func(roster.View)) {
	h.onSpawn = append(h.onSpawn, fn)
}

// announce is the client branch: register ourselves and introduce us to the host.
func (h *Handshake) announce(local transport.PeerID) {
	player := h.registry.Local()
	if err := h.registry.Add(local, player); err != nil {
		h.log.Warn("registering local player", logging.Error(err))
	}
	msg := &protocol.ClientAuth{
		DisplayName: player.DisplayName,
		Color:       player.Color.Pack(),
		Weapon:      player.Weapon.Spec().Name,
	}
	if err := h.bus.SendToHost(msg); err != nil {
		h.log.Warn("sending client auth", logging.Error(err))
		return
	}
	h.log.Info("authenticating", logging.Int32("local", int32(local)), logging.String("name", player.DisplayName))
}

// handleClientAuth is the host branch. Authentication is at most once per peer.
func (h *Handshake) handleClientAuth(from transport.PeerID, msg *protocol.ClientAuth) {
	if !h.session.IsHost() {
		return
	}
	if _, known := h.registry.Get(from); known {
		h.log.Debug("ignoring repeated client auth", logging.Int32("peer", int32(from)))
		return
	}

	//1.- Replay the current roster to the newcomer only.
	for _, player := range h.registry.Players() {
		if err := h.bus.SendTo(from, spawnMessage(player)); err != nil {
			h.log.Warn("replaying roster", logging.Int32("peer", int32(from)), logging.Error(err))
			return
		}
	}

	//2.- Register the newcomer at the spawn point.
	spec, err := h.resolve(msg.Weapon)
	if err != nil {
		h.log.Warn("unknown weapon, using default", logging.String("weapon", msg.Weapon), logging.Error(err))
		if spec, err = h.resolve(""); err != nil {
			h.log.Error("resolving default weapon", logging.Error(err))
			return
		}
	}
	player := roster.NewRemotePlayer(from, msg.DisplayName, roster.UnpackColor(msg.Color), h.spawn, spec)
	if err := h.registry.Add(from, player); err != nil {
		h.log.Warn("registering player", logging.Error(err))
		return
	}
	h.log.Info("player joined", logging.Int32("peer", int32(from)), logging.String("name", msg.DisplayName))
	h.notify(player)

	//3.- Announce the newcomer to every peer, itself included.
	if err := h.bus.Broadcast(spawnMessage(player)); err != nil {
		h.log.Warn("broadcasting spawn", logging.Error(err))
	}
}

// handleSpawn applies an authoritative spawn on a client.
func (h *Handshake) handleSpawn(_ transport.PeerID, msg *protocol.SpawnPlayer) {
	status := h.session.Status()
	if status != session.Authenticating && status != session.ConnectedToServer {
		return
	}
	id := transport.PeerID(msg.ID)
	position := physics.Vec2{X: msg.X, Y: msg.Y}

	if id == h.session.LocalID() {
		local := h.registry.Local()
		local.Position = position
		local.Velocity = physics.Vec2{}
		h.notify(local)
		if status == session.Authenticating {
			if err := h.session.ConfirmSpawn(); err != nil {
				h.log.Warn("confirming spawn", logging.Error(err))
			}
		}
		return
	}

	if existing, ok := h.registry.Get(id); ok {
		//1.- A repeated spawn refreshes the public attributes.
		existing.DisplayName = msg.DisplayName
		existing.Color = roster.UnpackColor(msg.Color)
		existing.Position = position
		if msg.Weapon != "" && existing.Weapon.Spec().Name != msg.Weapon {
			if spec, err := h.resolve(msg.Weapon); err == nil {
				existing.Weapon = weapon.New(spec)
			}
		}
		h.notify(existing)
		return
	}

	spec, err := h.resolve(msg.Weapon)
	if err != nil {
		h.log.Warn("unknown weapon, using default", logging.String("weapon", msg.Weapon), logging.Error(err))
		if spec, err = h.resolve(""); err != nil {
			h.log.Error("resolving default weapon", logging.Error(err))
			return
		}
	}
	player := roster.NewRemotePlayer(id, msg.DisplayName, roster.UnpackColor(msg.Color), position, spec)
	if err := h.registry.Add(id, player); err != nil {
		h.log.Warn("registering remote player", logging.Error(err))
		return
	}
	h.log.Debug("remote player spawned", logging.Int32("peer", int32(id)))
	h.notify(player)
}

func (h *Handshake) notify(player *roster.Player) {
	if len(h.onSpawn) == 0 {
		return
	}
	view := player.View()
	for _, fn := range h.onSpawn {
		fn(view)
	}
}

func spawnMessage(p *roster.Player) *protocol.SpawnPlayer {
	return &protocol.SpawnPlayer{
		ID:          int32(p.NetworkID),
		X:           p.Position.X,
		Y:           p.Position.Y,
		DisplayName: p.DisplayName,
		Color:       p.Color.Pack(),
		Weapon:      p.Weapon.Spec().Name,
	}
}
