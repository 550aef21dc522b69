package weapon

import "driftpursuit/netplay/internal/physics"

const gaussianSigma = 0.4

// Shot is the minimal input that reproduces one discharge on any peer.
type Shot struct {
	Aim         float32
	FacingRight bool
	Seed        int32
}

// Discharge is the deterministic outcome of one shot.
type Discharge struct {
	Shot Shot
	// Angle is the aim corrected by the recoil accumulated before the shot.
	Angle float32
	// Muzzle is the projectile origin relative to the holder.
	Muzzle physics.Vec2
	// Pellets holds one unit direction per projectile, in draw order.
	Pellets []physics.Vec2
	// RecoilDelta and SpreadDelta are the radians added to the weapon state.
	RecoilDelta float32
	SpreadDelta float32
	// Knockback is the impulse the holder receives opposite to Angle.
	Knockback physics.Vec2
}

// Compute runs the seeded discharge for spec given the spread bonus and recoil
// accumulated before the shot. It is pure: equal inputs give bit-identical
// outputs on every peer.
func Compute(spec Spec, spreadBonus, recoil float32, shot Shot) Discharge {
	rng := NewRand(shot.Seed)
	side := float32(1)
	if !shot.FacingRight {
		side = -1
	}
	//1.- Single-precision results are rounded explicitly so no step is fused.
	angle := float32(shot.Aim - float32(recoil*side))

	tip := spec.Tip
	if !shot.FacingRight {
		tip.Y = -tip.Y
	}

	cone := float32(physics.DegToRad(spec.Spread) + spreadBonus)
	pellets := make([]physics.Vec2, spec.BulletsPerShot)
	for i := range pellets {
		//2.- One clamped gaussian per pellet, drawn in index order.
		g := rng.Gaussian(gaussianSigma)
		if g < -1 {
			g = -1
		} else if g > 1 {
			g = 1
		}
		offset := float32(cone * float32(g))
		pellets[i] = physics.Polar(1, float32(angle+offset))
	}

	//3.- The recoil draw always follows the last pellet.
	recoilDeg := rng.Range(float64(spec.RecoilMin), float64(spec.RecoilMax))

	return Discharge{
		Shot:        shot,
		Angle:       angle,
		Muzzle:      tip.Rotated(angle),
		Pellets:     pellets,
		RecoilDelta: physics.DegToRad(float32(recoilDeg)),
		SpreadDelta: physics.DegToRad(spec.SpreadIncrease),
		Knockback:   physics.Polar(spec.Knockback, angle),
	}
}
