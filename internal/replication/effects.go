package replication

import (
	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

// Projectile is one bullet handed to the presentation layer. Its flight is
// simulated elsewhere.
type Projectile struct {
	Shooter        transport.PeerID
	Origin         physics.Vec2
	Direction      physics.Vec2
	Speed          float32
	EffectiveRange float32
	MaximumRange   float32
	Color          roster.Color
	Opacity        float32
}

// Velocity is the launch velocity of the projectile.
func (p Projectile) Velocity() physics.Vec2 { return p.Direction.Scale(p.Speed) }

// EffectSink receives the projectiles produced by every discharge on this peer.
type EffectSink interface {
	SpawnProjectile(p Projectile)
}

// EffectSinkFunc adapts a function to EffectSink.
type EffectSinkFunc func(p Projectile)

// SpawnProjectile calls f(p).
func (f EffectSinkFunc) SpawnProjectile(p Projectile) { f(p) }

type discardSink struct{}

func (discardSink) SpawnProjectile(Projectile) {}

// Record describes one discharge applied on this peer. SpreadBonus and Recoil
// hold the weapon state the discharge was computed from, so the shot can be
// recomputed offline with weapon.Compute.
type Record struct {
	Shooter     transport.PeerID
	Weapon      string
	Shot        weapon.Shot
	Mode        weapon.Mode
	SpreadBonus float32
	Recoil      float32
	Pellets     int
	RecoilDelta float32
	Knockback   physics.Vec2
}

func projectiles(shooter *roster.Player, d weapon.Discharge) []Projectile {
	spec := shooter.Weapon.Spec()
	origin := shooter.Position.Add(d.Muzzle)
	out := make([]Projectile, len(d.Pellets))
	for i, dir := range d.Pellets {
		out[i] = Projectile{
			Shooter:        shooter.NetworkID,
			Origin:         origin,
			Direction:      dir,
			Speed:          spec.BulletVelocity,
			EffectiveRange: spec.EffectiveRange,
			MaximumRange:   spec.MaximumRange,
			Color:          shooter.Color,
			Opacity:        spec.BulletOpacity,
		}
	}
	return out
}
