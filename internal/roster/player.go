package roster

import (
	"fmt"

	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

// Color is an 8-bit-per-channel RGB triple.
type Color [3]uint8

// Pack encodes the colour as 0xRRGGBB.
func (c Color) Pack() uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// Hex renders the colour as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// UnpackColor decodes a 0xRRGGBB value.
func UnpackColor(v uint32) Color {
	return Color{uint8(v >> 16), uint8(v >> 8), uint8(v)}
}

// Player is one participant's entity. The local player outlives sessions;
// remote players exist only while the registry holds them.
type Player struct {
	NetworkID   transport.PeerID
	DisplayName string
	Color       Color
	Position    physics.Vec2
	Velocity    physics.Vec2
	Weapon      *weapon.Weapon
	local       bool
}

// NewLocalPlayer builds the player controlled by this process. It has no
// network identity until a session assigns one.
func NewLocalPlayer(name string, color Color, spec weapon.Spec) *Player {
	return &Player{
		NetworkID:   transport.Unassigned,
		DisplayName: name,
		Color:       color,
		Weapon:      weapon.New(spec),
		local:       true,
	}
}

// NewRemotePlayer builds the stand-in for another peer's player.
func NewRemotePlayer(id transport.PeerID, name string, color Color, position physics.Vec2, spec weapon.Spec) *Player {
	return &Player{
		NetworkID:   id,
		DisplayName: name,
		Color:       color,
		Position:    position,
		Weapon:      weapon.New(spec),
	}
}

// IsLocal reports whether this process controls the player.
func (p *Player) IsLocal() bool { return p.local }

// View is an immutable copy of a player's public attributes, safe to hand to
// other goroutines.
type View struct {
	ID          transport.PeerID
	DisplayName string
	Color       Color
	Position    physics.Vec2
	Velocity    physics.Vec2
	Local       bool
	Weapon      string
	Rounds      int
	Reloading   bool
	Aim         float32
	FacingRight bool
}

// View copies the player's current public state.
func (p *Player) View() View {
	v := View{
		ID:          p.NetworkID,
		DisplayName: p.DisplayName,
		Color:       p.Color,
		Position:    p.Position,
		Velocity:    p.Velocity,
		Local:       p.local,
	}
	if p.Weapon != nil {
		v.Weapon = p.Weapon.Spec().Name
		v.Rounds = p.Weapon.Rounds()
		v.Reloading = p.Weapon.Reloading()
		v.Aim = p.Weapon.Aim()
		v.FacingRight = p.Weapon.FacingRight()
	}
	return v
}
