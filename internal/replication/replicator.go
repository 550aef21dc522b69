// Package replication replicates weapon actions with client prediction and
// host authority. The owner fires locally and forwards only aim, facing and a
// 32-bit seed; the host re-runs the discharge against its copy of the weapon
// and re-broadcasts accepted shots; every other peer replays them from the
// same seed.
package replication

import (
	"math/rand/v2"

	"driftpursuit/netplay/internal/bus"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/protocol"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/session"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

// Options configures a Replicator.
type Options struct {
	Sink EffectSink
	// Seeds draws the seed for each locally predicted shot.
	Seeds  func() int32
	Logger *logging.Logger
}

// Replicator drives the local weapon and applies remote weapon actions. All
// methods run on the simulation goroutine.
type Replicator struct {
	session  *session.Manager
	bus      *bus.Bus
	registry *roster.Registry
	sink     EffectSink
	seeds    func() int32
	log      *logging.Logger

	lastAim float32
	aimSent bool
	onFire  []func(Record)
}

// New registers the fire, aim and reload handlers on b.
func New(mgr *session.Manager, b *bus.Bus, opts Options) *Replicator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}
	seeds := opts.Seeds
	if seeds == nil {
		seeds = func() int32 { return int32(rand.Uint32()) }
	}
	r := &Replicator{
		session:  mgr,
		bus:      b,
		registry: mgr.Registry(),
		sink:     sink,
		seeds:    seeds,
		log:      logger.With(logging.String("component", "replication")),
	}
	bus.Handle(b, bus.FromClients, r.authorizeFire)
	bus.Handle(b, bus.FromHost, r.replayFire)
	bus.Handle(b, bus.FromClients, r.relayAim)
	bus.Handle(b, bus.FromHost, r.applyAim)
	bus.Handle(b, bus.FromClients, r.authorizeReload)
	mgr.Subscribe(func(status session.Status) {
		if status == session.NoConnection {
			r.aimSent = false
		}
	})
	return r
}

// OnFire registers fn to observe every discharge applied on this peer.
func (r *Replicator) OnFire(fn func(Record)) {
	r.onFire = append(r.onFire, fn)
}

// SetAim points the local weapon and replicates the new direction.
func (r *Replicator) SetAim(direction float32) {
	local := r.registry.Local()
	local.Weapon.SetAim(direction)
	if !r.session.IsMultiplayerReady() || (r.aimSent && r.lastAim == direction) {
		return
	}
	msg := &protocol.Aim{Shooter: int32(local.NetworkID), Direction: direction}
	if err := r.toPeers(msg); err != nil {
		r.log.Debug("replicating aim", logging.Error(err))
		return
	}
	r.lastAim = direction
	r.aimSent = true
}

// PressTrigger holds the local trigger and attempts a shot.
func (r *Replicator) PressTrigger() bool {
	r.registry.Local().Weapon.PressTrigger()
	return r.fire()
}

// ReleaseTrigger lets go of the local trigger.
func (r *Replicator) ReleaseTrigger() {
	r.registry.Local().Weapon.ReleaseTrigger()
}

// Reload starts a manual reload of the local weapon. Clients ask the host to
// reload its authoritative copy too.
func (r *Replicator) Reload() bool {
	local := r.registry.Local()
	if !local.Weapon.StartReload() {
		return false
	}
	if r.session.Status() == session.ConnectedToServer {
		if err := r.bus.SendToHost(&protocol.Reload{Shooter: int32(local.NetworkID)}); err != nil {
			r.log.Debug("replicating reload", logging.Error(err))
		}
	}
	return true
}

// Step advances every weapon by dt seconds and keeps a held automatic
// trigger firing.
func (r *Replicator) Step(dt float32) {
	local := r.registry.Local()
	local.Weapon.Tick(dt)
	for _, p := range r.registry.Players() {
		if p != local {
			p.Weapon.Tick(dt)
		}
	}
	if _, held := local.Weapon.TriggerHeld(); held && local.Weapon.Spec().Automatic {
		r.fire()
	}
}

// fire predicts a local shot and forwards it. A failed precondition sends nothing.
func (r *Replicator) fire() bool {
	local := r.registry.Local()
	w := local.Weapon
	shot := weapon.Shot{Aim: w.Aim(), FacingRight: w.FacingRight(), Seed: r.seeds()}
	spread, recoil := w.SpreadBonus(), w.Recoil()
	d, ok := w.Discharge(shot, weapon.Predict)
	if !ok {
		return false
	}
	r.emit(local, d, weapon.Predict, spread, recoil)
	local.Velocity = local.Velocity.Sub(d.Knockback)

	if !r.session.IsMultiplayerReady() {
		return true
	}
	msg := &protocol.Fire{
		Shooter:      int32(local.NetworkID),
		AimDirection: shot.Aim,
		FacingRight:  shot.FacingRight,
		Seed:         shot.Seed,
	}
	if err := r.toPeers(msg); err != nil {
		r.log.Debug("forwarding shot", logging.Error(err))
	}
	return true
}

// authorizeFire validates a client's shot against the host's copy of its weapon.
func (r *Replicator) authorizeFire(from transport.PeerID, msg *protocol.Fire) {
	shooter, ok := r.owned(from, msg.Shooter, protocol.TagFire)
	if !ok {
		return
	}
	w := shooter.Weapon
	shot := weapon.Shot{Aim: msg.AimDirection, FacingRight: msg.FacingRight, Seed: msg.Seed}
	spread, recoil := w.SpreadBonus(), w.Recoil()
	d, ok := w.Discharge(shot, weapon.Authorize)
	if !ok {
		r.log.Debug("rejected shot", logging.Int32("peer", int32(from)), logging.Int("rounds", w.Rounds()))
		return
	}
	r.emit(shooter, d, weapon.Authorize, spread, recoil)
	if err := r.bus.Broadcast(msg); err != nil {
		r.log.Warn("broadcasting shot", logging.Error(err))
	}
}

// replayFire reproduces an accepted shot. Our own shots come back too and are
// skipped because they were predicted already.
func (r *Replicator) replayFire(_ transport.PeerID, msg *protocol.Fire) {
	id := transport.PeerID(msg.Shooter)
	if id == r.session.LocalID() {
		return
	}
	shooter, ok := r.registry.Get(id)
	if !ok {
		r.log.Debug("shot from unknown player", logging.Int32("shooter", msg.Shooter))
		return
	}
	w := shooter.Weapon
	shot := weapon.Shot{Aim: msg.AimDirection, FacingRight: msg.FacingRight, Seed: msg.Seed}
	spread, recoil := w.SpreadBonus(), w.Recoil()
	d, _ := w.Discharge(shot, weapon.Replay)
	r.emit(shooter, d, weapon.Replay, spread, recoil)
}

func (r *Replicator) relayAim(from transport.PeerID, msg *protocol.Aim) {
	shooter, ok := r.owned(from, msg.Shooter, protocol.TagAim)
	if !ok {
		return
	}
	shooter.Weapon.SetAim(msg.Direction)
	if err := r.bus.Broadcast(msg); err != nil {
		r.log.Warn("broadcasting aim", logging.Error(err))
	}
}

func (r *Replicator) applyAim(_ transport.PeerID, msg *protocol.Aim) {
	id := transport.PeerID(msg.Shooter)
	if id == r.session.LocalID() {
		return
	}
	if shooter, ok := r.registry.Get(id); ok {
		shooter.Weapon.SetAim(msg.Direction)
	}
}

func (r *Replicator) authorizeReload(from transport.PeerID, msg *protocol.Reload) {
	shooter, ok := r.owned(from, msg.Shooter, protocol.TagReload)
	if !ok {
		return
	}
	shooter.Weapon.StartReload()
}

// owned returns the player a client message addresses, provided the sender
// controls it.
func (r *Replicator) owned(from transport.PeerID, shooter int32, tag protocol.Tag) (*roster.Player, bool) {
	if !r.session.IsHost() {
		return nil, false
	}
	if transport.PeerID(shooter) != from {
		r.log.Warn("dropping action for a player the sender does not own",
			logging.Stringer("tag", tag),
			logging.Int32("peer", int32(from)),
			logging.Int32("shooter", shooter),
		)
		return nil, false
	}
	player, ok := r.registry.Get(from)
	if !ok {
		r.log.Debug("action from unauthenticated peer", logging.Stringer("tag", tag), logging.Int32("peer", int32(from)))
		return nil, false
	}
	return player, true
}

// toPeers sends msg upstream as a client, or to everyone as the host.
func (r *Replicator) toPeers(msg protocol.Message) error {
	if r.session.IsHost() {
		return r.bus.Broadcast(msg)
	}
	return r.bus.SendToHost(msg)
}

func (r *Replicator) emit(shooter *roster.Player, d weapon.Discharge, mode weapon.Mode, spread, recoil float32) {
	for _, p := range projectiles(shooter, d) {
		r.sink.SpawnProjectile(p)
	}
	if len(r.onFire) == 0 {
		return
	}
	rec := Record{
		Shooter:     shooter.NetworkID,
		Weapon:      shooter.Weapon.Spec().Name,
		Shot:        d.Shot,
		Mode:        mode,
		SpreadBonus: spread,
		Recoil:      recoil,
		Pellets:     len(d.Pellets),
		RecoilDelta: d.RecoilDelta,
		Knockback:   d.Knockback,
	}
	for _, fn := range r.onFire {
		fn(rec)
	}
}
