package physics

import (
	"math"
	"testing"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestPolarAndRotated(t *testing.T) {
	v := Polar(2, math.Pi/2)
	if !near(v.X, 0) || !near(v.Y, 2) {
		t.Fatalf("unexpected polar vector %+v", v)
	}
	r := Vec2{X: 1}.Rotated(math.Pi)
	if !near(r.X, -1) || !near(r.Y, 0) {
		t.Fatalf("unexpected rotation %+v", r)
	}
	if l := (Vec2{X: 3, Y: 4}).Length(); !near(l, 5) {
		t.Fatalf("unexpected length %v", l)
	}
}

func TestVectorArithmetic(t *testing.T) {
	a := Vec2{X: 1, Y: 2}
	b := Vec2{X: 3, Y: -1}
	if got := a.Add(b); got != (Vec2{X: 4, Y: 1}) {
		t.Fatalf("add: %+v", got)
	}
	if got := a.Sub(b); got != (Vec2{X: -2, Y: 3}) {
		t.Fatalf("sub: %+v", got)
	}
	if got := a.Scale(2); got != (Vec2{X: 2, Y: 4}) {
		t.Fatalf("scale: %+v", got)
	}
}

func TestWrapAngle(t *testing.T) {
	cases := []struct {
		in, want float32
	}{
		{0, 0},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tc := range cases {
		if got := WrapAngle(tc.in); !near(got, tc.want) {
			t.Fatalf("WrapAngle(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if deg := RadToDeg(DegToRad(90)); !near(deg, 90) {
		t.Fatalf("degree round trip gave %v", deg)
	}
}
