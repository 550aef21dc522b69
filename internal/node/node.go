// Package node composes the session core into one context object owned by
// the simulation goroutine: connection manager, registry, message bus,
// handshake and action replication, plus the optional journal and observer feed.
package node

import (
	"fmt"
	"time"

	"driftpursuit/netplay/internal/bus"
	"driftpursuit/netplay/internal/config"
	"driftpursuit/netplay/internal/handshake"
	"driftpursuit/netplay/internal/journal"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/observer"
	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/replication"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/session"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

// Options carries the collaborators a Node does not build itself.
type Options struct {
	Sink    replication.EffectSink
	Feed    *observer.Feed
	Journal *journal.Writer
	Seeds   func() int32
	Logger  *logging.Logger
}

// Node is one peer's session context.
type Node struct {
	cfg       *config.Config
	log       *logging.Logger
	transport transport.Transport
	session   *session.Manager
	bus       *bus.Bus
	handshake *handshake.Handshake
	rep       *replication.Replicator
	feed      *observer.Feed
	journal   *journal.Writer
	tick      uint64
}

// New builds a node around tr from cfg.
func New(cfg *config.Config, tr transport.Transport, opts Options) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	spec, err := weapon.Lookup(cfg.Weapon)
	if err != nil {
		return nil, err
	}
	rgb, err := config.ParseColor(cfg.Color)
	if err != nil {
		return nil, fmt.Errorf("colour: %w", err)
	}

	local := roster.NewLocalPlayer(cfg.DisplayName, roster.Color(rgb), spec)
	mgr := session.NewManager(tr, roster.NewRegistry(local), logger)
	b := bus.New(tr, logger)
	n := &Node{
		cfg:       cfg,
		log:       logger.With(logging.String("component", "node")),
		transport: tr,
		session:   mgr,
		bus:       b,
		feed:      opts.Feed,
		journal:   opts.Journal,
	}
	mgr.SetPacketHandler(n.dispatch)
	n.handshake = handshake.New(mgr, b, handshake.Options{
		Spawn:  physics.Vec2{X: float32(cfg.SpawnX), Y: float32(cfg.SpawnY)},
		Logger: logger,
	})
	n.rep = replication.New(mgr, b, replication.Options{
		Sink:   opts.Sink,
		Seeds:  opts.Seeds,
		Logger: logger,
	})

	mgr.Subscribe(n.statusChanged)
	mgr.OnPeerLeft(n.peerLeft)
	n.handshake.OnSpawn(n.spawned)
	n.rep.OnFire(n.fired)
	n.statusChanged(mgr.Status())
	return n, nil
}

// Session exposes the connection manager.
func (n *Node) Session() *session.Manager { return n.session }

// Registry exposes the player registry.
func (n *Node) Registry() *roster.Registry { return n.session.Registry() }

// Replicator exposes the weapon controls of the local player.
func (n *Node) Replicator() *replication.Replicator { return n.rep }

// Bus exposes the message bus, mainly for its traffic metrics.
func (n *Node) Bus() *bus.Bus { return n.bus }

// Tick reports how many frames have been stepped.
func (n *Node) Tick() uint64 { return n.tick }

// Host starts hosting on the configured port.
func (n *Node) Host() error {
	return n.session.StartHosting(n.cfg.Port)
}

// Join connects to a host at address on the configured port.
func (n *Node) Join(address string) error {
	return n.session.Connect(address, n.cfg.Port)
}

// Leave ends whichever session is running. It is a no-op when offline.
func (n *Node) Leave() error {
	switch {
	case n.session.IsHost():
		return n.session.StopHosting()
	case n.session.Status() != session.NoConnection:
		return n.session.Disconnect()
	default:
		return nil
	}
}

// Step advances the session by one frame: apply network events, tick
// weapons, then publish the roster.
func (n *Node) Step(dt time.Duration) {
	n.tick++
	n.session.Poll()
	n.rep.Step(float32(dt.Seconds()))
	if n.feed != nil {
		n.feed.PublishRoster(n.Registry().Snapshot())
	}
}

// Close leaves the session and finalises the journal.
func (n *Node) Close() error {
	err := n.Leave()
	if n.journal != nil {
		if jerr := n.journal.Close(); jerr != nil && err == nil {
			err = jerr
		}
	}
	return err
}

func (n *Node) dispatch(from transport.PeerID, payload []byte) {
	_ = n.bus.Dispatch(from, payload)
}

func (n *Node) statusChanged(status session.Status) {
	local := int32(n.session.LocalID())
	if status == session.NoConnection {
		n.bus.Metrics().Reset()
	}
	if n.feed != nil {
		n.feed.PublishStatus(observer.StatusUpdate{
			Status:           status.String(),
			LocalID:          local,
			MultiplayerReady: status.IsMultiplayerReady(),
			Host:             status.IsHost(),
		})
	}
	n.record("status", map[string]any{"status": status.String(), "local_id": local})
}

func (n *Node) spawned(v roster.View) {
	n.record("spawn", map[string]any{
		"id":     int32(v.ID),
		"name":   v.DisplayName,
		"color":  v.Color.Hex(),
		"x":      v.Position.X,
		"y":      v.Position.Y,
		"weapon": v.Weapon,
	})
}

func (n *Node) peerLeft(id transport.PeerID) {
	n.record("peer_left", map[string]any{"id": int32(id)})
}

func (n *Node) fired(r replication.Record) {
	if n.journal == nil {
		return
	}
	frame := journal.FireFrame{
		Tick:        n.tick,
		Shooter:     int32(r.Shooter),
		Weapon:      r.Weapon,
		Mode:        uint8(r.Mode),
		FacingRight: r.Shot.FacingRight,
		Seed:        r.Shot.Seed,
		Aim:         r.Shot.Aim,
		SpreadBonus: r.SpreadBonus,
		Recoil:      r.Recoil,
		RecoilDelta: r.RecoilDelta,
		Pellets:     uint16(r.Pellets),
	}
	if err := n.journal.AppendFire(frame); err != nil {
		n.log.Warn("journal fire", logging.Error(err))
	}
}

func (n *Node) record(kind string, payload any) {
	if n.journal == nil {
		return
	}
	if err := n.journal.AppendEvent(n.tick, kind, payload); err != nil {
		n.log.Warn("journal event", logging.String("type", kind), logging.Error(err))
	}
}
