// Package weapon simulates a single firearm: magazine, reload, fire delay,
// accumulated spread and recoil, and the deterministic seeded discharge that
// every peer reproduces from a Shot.
package weapon

import (
	"fmt"
	"math"
	"time"

	"driftpursuit/netplay/internal/physics"
)

// Mode selects how much of the weapon state a discharge touches.
type Mode int

const (
	// Predict is the owner's local shot: precondition checked, ammo and delay tracked.
	Predict Mode = iota + 1
	// Authorize is the host validating a remote owner's shot with full bookkeeping.
	Authorize
	// Replay reproduces someone else's accepted shot for visuals only.
	Replay
)

func (m Mode) String() string {
	switch m {
	case Predict:
		return "predict"
	case Authorize:
		return "authorize"
	case Replay:
		return "replay"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	facingLeftAboveDeg  = 100
	facingRightBelowDeg = 80
)

var (
	spreadDecayFloor = float32(2 * math.Pi / 300)
	recoilDecayFloor = float32(2 * math.Pi / 800)
)

// Weapon is the mutable state of one firearm. It is only touched by the
// simulation goroutine.
type Weapon struct {
	spec Spec

	rounds          int
	reloading       bool
	reloadRemaining float32
	fireDelay       float32
	spreadBonus     float32
	recoil          float32

	aim         float32
	facingRight bool

	triggerHeld bool
	heldFor     time.Duration
}

// New returns a weapon with a full magazine facing right.
func New(spec Spec) *Weapon {
	return &Weapon{spec: spec, rounds: spec.Capacity, facingRight: true}
}

// Spec returns the balance values the weapon was built from.
func (w *Weapon) Spec() Spec { return w.spec }

// Rounds reports the rounds left in the magazine.
func (w *Weapon) Rounds() int { return w.rounds }

// Reloading reports whether a reload is in progress.
func (w *Weapon) Reloading() bool { return w.reloading }

// ReloadProgress reports completion in [0, 1] while reloading.
func (w *Weapon) ReloadProgress() (float32, bool) {
	if !w.reloading {
		return 0, false
	}
	if w.spec.ReloadTime <= 0 {
		return 1, true
	}
	return 1 - w.reloadRemaining/w.spec.ReloadTime, true
}

// FireDelay reports the seconds until the next shot may be fired. Held
// automatic triggers may drive it negative.
func (w *Weapon) FireDelay() float32 { return w.fireDelay }

// SpreadBonus reports the accumulated extra spread in radians.
func (w *Weapon) SpreadBonus() float32 { return w.spreadBonus }

// Recoil reports the accumulated recoil in radians.
func (w *Weapon) Recoil() float32 { return w.recoil }

// Aim reports the aim direction in radians.
func (w *Weapon) Aim() float32 { return w.aim }

// FacingRight reports which way the weapon is held.
func (w *Weapon) FacingRight() bool { return w.facingRight }

// TriggerHeld reports whether the trigger is down and for how long.
func (w *Weapon) TriggerHeld() (time.Duration, bool) {
	return w.heldFor, w.triggerHeld
}

// SetAim points the weapon and flips the facing with hysteresis.
func (w *Weapon) SetAim(direction float32) {
	w.aim = direction
	deg := float32(math.Abs(float64(physics.RadToDeg(physics.WrapAngle(direction)))))
	if w.facingRight {
		if deg > facingLeftAboveDeg {
			w.facingRight = false
		}
	} else if deg < facingRightBelowDeg {
		w.facingRight = true
	}
}

// PressTrigger starts holding the trigger.
func (w *Weapon) PressTrigger() {
	w.triggerHeld = true
	w.heldFor = 0
}

// ReleaseTrigger lets go of the trigger.
func (w *Weapon) ReleaseTrigger() {
	w.triggerHeld = false
	w.heldFor = 0
}

// StartReload begins a manual reload. It refuses full magazines and reloads
// already in progress.
func (w *Weapon) StartReload() bool {
	if w.reloading || w.rounds >= w.spec.Capacity {
		return false
	}
	w.reloading = true
	w.reloadRemaining = w.spec.ReloadTime
	return true
}

// Ready reports whether the precondition for firing holds.
func (w *Weapon) Ready() bool {
	return !w.reloading && w.rounds > 0 && w.fireDelay <= 0
}

// Tick advances the weapon by dt seconds.
func (w *Weapon) Tick(dt float32) {
	if dt <= 0 {
		return
	}
	//1.- Spread and recoil relax towards zero, faster the larger they are.
	spreadDecrease := max(spreadDecayFloor, 2*w.spreadBonus)
	recoilDecrease := max(recoilDecayFloor, 2*w.recoil)
	w.spreadBonus = max(0, w.spreadBonus-float32(spreadDecrease*dt))
	w.recoil = max(0, w.recoil-float32(recoilDecrease*dt))

	if w.triggerHeld {
		w.heldFor += time.Duration(float64(dt) * float64(time.Second))
	}

	//2.- Progress the reload, or start one once the magazine ran dry.
	if w.reloading {
		w.reloadRemaining -= dt
		if w.reloadRemaining <= 0 {
			w.rounds = w.spec.Capacity
			w.reloading = false
			w.reloadRemaining = 0
		}
	} else if w.rounds <= 0 {
		w.reloading = true
		w.reloadRemaining = w.spec.ReloadTime
	}

	//3.- A held automatic trigger carries negative delay into the next shot.
	if w.fireDelay > 0 {
		w.fireDelay -= dt
		if w.fireDelay < 0 && (!w.spec.Automatic || !w.triggerHeld) {
			w.fireDelay = 0
		}
	}
}

// Discharge fires shot. Predict and Authorize require Ready and update ammo
// and fire delay; Replay skips both. Spread and recoil always accumulate.
func (w *Weapon) Discharge(shot Shot, mode Mode) (Discharge, bool) {
	if mode != Replay && !w.Ready() {
		return Discharge{}, false
	}
	out := Compute(w.spec, w.spreadBonus, w.recoil, shot)
	w.spreadBonus += out.SpreadDelta
	w.recoil += out.RecoilDelta
	if mode != Replay {
		w.fireDelay += 60 / float32(w.spec.RateOfFire)
		w.rounds--
	}
	return out, true
}
