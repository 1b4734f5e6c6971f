package motion

import "image"

// Viewport reports the current display size in pixels. Implementations may change
// size at any time; conversions query it on every call.
type Viewport interface {
	Size() image.Point
}

// StaticViewport is a Viewport of fixed size.
type StaticViewport image.Point

// Size implements Viewport.
func (s StaticViewport) Size() image.Point {
	return image.Point(s)
}

// WindowToNorm maps a window-space vector (pixels, pixel area) into normalized
// space. A non-positive size yields the Sentinel.
//
// Arguments:
//   - v: x, y in pixels and z as an area in square pixels.
//   - size: The current display size.
//
// Returns:
//   - Vec3: x/W, y/H, z/(W*H).
func WindowToNorm(v Vec3, size image.Point) Vec3 {
	if size.X <= 0 || size.Y <= 0 {
		return Sentinel
	}
	w, h := float32(size.X), float32(size.Y)
	return Vec3{X: v.X / w, Y: v.Y / h, Z: v.Z / (w * h)}
}

// NormToWindow is the inverse of WindowToNorm.
func NormToWindow(v Vec3, size image.Point) Vec3 {
	w, h := float32(size.X), float32(size.Y)
	return Vec3{X: v.X * w, Y: v.Y * h, Z: v.Z * w * h}
}
