// Package motion - Position history and finite-difference motion estimation for a
// single tracked blob.
//
// Positions are stored in normalized space: x and y in [0, 1] relative to the
// display, z is the blob area relative to the display area. A position whose X is
// -1 is the sentinel and means "no detection at that frame".
package motion

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Vec3 is a float32 3-vector.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Sentinel marks a history slot without a detection.
var Sentinel = Vec3{X: -1, Y: -1, Z: -1}

// IsSentinel reports whether v is the "no detection" marker. Only X is checked.
func (v Vec3) IsSentinel() bool {
	return v.X == -1
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Div returns v / s.
func (v Vec3) Div(s float32) Vec3 {
	return Vec3{X: v.X / s, Y: v.Y / s, Z: v.Z / s}
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float32 {
	return math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Array returns the components in x, y, z order.
func (v Vec3) Array() [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}
