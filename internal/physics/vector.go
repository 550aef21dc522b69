// Package physics holds the small 2D vector helpers shared by the roster and the
// weapon simulation. Components are float32 so every peer performs the same
// single-precision arithmetic.
package physics

import "math"

// Vec2 is a 2D vector in world units.
type Vec2 struct {
	X float32
	Y float32
}

// Polar returns the vector of the given length pointing along angle radians.
func Polar(length, angle float32) Vec2 {
	a := float64(angle)
	return Vec2{X: float32(float64(length) * math.Cos(a)), Y: float32(float64(length) * math.Sin(a))}
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v multiplied by s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Length returns the Euclidean norm.
func (v Vec2) Length() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Rotated returns v rotated counter-clockwise by angle radians.
func (v Vec2) Rotated(angle float32) Vec2 {
	sin, cos := math.Sincos(float64(angle))
	x, y := float64(v.X), float64(v.Y)
	//1.- Round each product before summing so no architecture fuses the operations.
	return Vec2{
		X: float32(float64(x*cos) - float64(y*sin)),
		Y: float32(float64(x*sin) + float64(y*cos)),
	}
}

// DegToRad converts degrees to radians in single precision.
func DegToRad(deg float32) float32 {
	return float32(float64(deg) * (math.Pi / 180))
}

// RadToDeg converts radians to degrees in single precision.
func RadToDeg(rad float32) float32 {
	return float32(float64(rad) * (180 / math.Pi))
}

// WrapAngle normalises an angle in radians to the [-π, π) range.
func WrapAngle(angle float32) float32 {
	//1.- Use math.Mod to keep values bounded however far the aim has drifted.
	wrapped := math.Mod(float64(angle)+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return float32(wrapped - math.Pi)
}
