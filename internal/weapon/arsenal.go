package weapon

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"driftpursuit/netplay/internal/physics"
)

// ErrUnknownWeapon is returned when a weapon id is missing from the arsenal.
var ErrUnknownWeapon = errors.New("unknown weapon")

// Spec captures the balance values of one weapon. Angles are in degrees,
// ranges in world units and RateOfFire in rounds per minute.
type Spec struct {
	Name           string
	Automatic      bool
	RateOfFire     int
	Capacity       int
	ReloadTime     float32
	Knockback      float32
	Spread         float32
	SpreadIncrease float32
	RecoilMin      float32
	RecoilMax      float32
	EffectiveRange float32
	MaximumRange   float32
	BulletVelocity float32
	BulletsPerShot int
	BulletOpacity  float32
	// Tip is the muzzle offset relative to the holder when facing right.
	Tip physics.Vec2
}

// Validate rejects specs the simulation cannot run.
func (s Spec) Validate() error {
	var problems []string
	if s.RateOfFire <= 0 {
		problems = append(problems, "rateOfFire must be positive")
	}
	if s.Capacity <= 0 {
		problems = append(problems, "capacity must be positive")
	}
	if s.ReloadTime < 0 {
		problems = append(problems, "reloadTime must not be negative")
	}
	if s.BulletsPerShot <= 0 {
		problems = append(problems, "bulletsPerShot must be positive")
	}
	if s.RecoilMax < s.RecoilMin {
		problems = append(problems, "recoilMax must not be below recoilMin")
	}
	if len(problems) > 0 {
		return fmt.Errorf("weapon %q: %s", s.Name, strings.Join(problems, "; "))
	}
	return nil
}

type tipConfig struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// ArchetypeConfig defines the handling shared by a family of weapons.
type ArchetypeConfig struct {
	Automatic      bool      `json:"automatic"`
	BulletsPerShot int       `json:"bulletsPerShot"`
	BulletVelocity float32   `json:"bulletVelocity"`
	BulletOpacity  float32   `json:"bulletOpacity"`
	Tip            tipConfig `json:"tip"`
}

// VariantConfig customises an archetype for a specific weapon id.
type VariantConfig struct {
	Archetype      string   `json:"archetype"`
	RateOfFire     int      `json:"rateOfFire"`
	Capacity       int      `json:"capacity"`
	ReloadTime     float32  `json:"reloadTime"`
	Knockback      float32  `json:"knockback"`
	Spread         float32  `json:"spread"`
	SpreadIncrease float32  `json:"spreadIncrease"`
	RecoilMin      float32  `json:"recoilMin"`
	RecoilMax      float32  `json:"recoilMax"`
	EffectiveRange float32  `json:"effectiveRange"`
	MaximumRange   float32  `json:"maximumRange"`
	Automatic      *bool    `json:"automatic,omitempty"`
	BulletsPerShot *int     `json:"bulletsPerShot,omitempty"`
	BulletVelocity *float32 `json:"bulletVelocity,omitempty"`
	BulletOpacity  *float32 `json:"bulletOpacity,omitempty"`
}

// Catalog mirrors the structure of arsenal.json.
type Catalog struct {
	Default    string                     `json:"default"`
	Archetypes map[string]ArchetypeConfig `json:"archetypes"`
	Weapons    map[string]VariantConfig   `json:"weapons"`
}

// Resolve merges the variant named id with its archetype.
func (c Catalog) Resolve(id string) (Spec, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = c.Default
	}
	variant, ok := c.Weapons[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownWeapon, id)
	}
	base, ok := c.Archetypes[variant.Archetype]
	if !ok {
		return Spec{}, fmt.Errorf("weapon %q references unknown archetype %q", id, variant.Archetype)
	}
	spec := Spec{
		Name:           id,
		Automatic:      base.Automatic,
		RateOfFire:     variant.RateOfFire,
		Capacity:       variant.Capacity,
		ReloadTime:     variant.ReloadTime,
		Knockback:      variant.Knockback,
		Spread:         variant.Spread,
		SpreadIncrease: variant.SpreadIncrease,
		RecoilMin:      variant.RecoilMin,
		RecoilMax:      variant.RecoilMax,
		EffectiveRange: variant.EffectiveRange,
		MaximumRange:   variant.MaximumRange,
		BulletVelocity: base.BulletVelocity,
		BulletsPerShot: base.BulletsPerShot,
		BulletOpacity:  base.BulletOpacity,
		Tip:            physics.Vec2{X: base.Tip.X, Y: base.Tip.Y},
	}
	//1.- Apply per-variant overrides on top of the archetype handling.
	if variant.Automatic != nil {
		spec.Automatic = *variant.Automatic
	}
	if variant.BulletsPerShot != nil {
		spec.BulletsPerShot = *variant.BulletsPerShot
	}
	if variant.BulletVelocity != nil {
		spec.BulletVelocity = *variant.BulletVelocity
	}
	if variant.BulletOpacity != nil {
		spec.BulletOpacity = *variant.BulletOpacity
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// Names lists the weapon ids in the catalog in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Weapons))
	for name := range c.Weapons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone produces a copy to protect the cached catalog from mutation.
func (c Catalog) Clone() Catalog {
	clone := Catalog{
		Default:    c.Default,
		Archetypes: make(map[string]ArchetypeConfig, len(c.Archetypes)),
		Weapons:    make(map[string]VariantConfig, len(c.Weapons)),
	}
	for key, value := range c.Archetypes {
		clone.Archetypes[key] = value
	}
	for key, value := range c.Weapons {
		clone.Weapons[key] = value
	}
	return clone
}

var (
	arsenalOnce sync.Once
	arsenalData Catalog
	arsenalErr  error
)

//go:embed arsenal.json
var arsenalPayload []byte

// Arsenal exposes the embedded weapon catalog.
func Arsenal() Catalog {
	arsenalOnce.Do(func() {
		//1.- Parse the embedded payload once so concurrent callers share the same data.
		arsenalErr = json.Unmarshal(arsenalPayload, &arsenalData)
	})
	//2.- A broken embedded catalog is a build defect, surface it immediately.
	if arsenalErr != nil {
		panic(arsenalErr)
	}
	return arsenalData.Clone()
}

// Lookup resolves id against the embedded arsenal.
func Lookup(id string) (Spec, error) {
	return Arsenal().Resolve(id)
}
