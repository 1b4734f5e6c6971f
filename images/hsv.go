// Package images - HSV calibration bounds and tolerance expansion.
package images

import "gocv.io/x/gocv"

// ChannelMax is the largest legal value of an 8-bit channel. Hue uses the
// full-range convention, so it spans 0..255 like saturation and value.
const ChannelMax = 255

// HSVBounds holds a min/max pair per HSV channel.
//
// The zero value is the "not calibrated yet" state: every range is [0, 0], which
// matches almost nothing and is not an error.
type HSVBounds struct {
	HMin int `json:"h_min" yaml:"h_min"`
	HMax int `json:"h_max" yaml:"h_max"`
	SMin int `json:"s_min" yaml:"s_min"`
	SMax int `json:"s_max" yaml:"s_max"`
	VMin int `json:"v_min" yaml:"v_min"`
	VMax int `json:"v_max" yaml:"v_max"`
}

// Tolerance widens calibrated bounds symmetrically, per channel.
type Tolerance struct {
	H int `json:"h" yaml:"h"`
	S int `json:"s" yaml:"s"`
	V int `json:"v" yaml:"v"`
}

// DefaultTolerance returns the tolerances used when nothing is configured.
func DefaultTolerance() Tolerance {
	return Tolerance{H: 2, S: 15, V: 40}
}

// ExpandBounds widens raw by tol and clamps every channel into [0, 255].
//
// Negative tolerances are treated as zero so that the expanded range always
// contains the raw range.
//
// Arguments:
//   - raw: Bounds as measured by calibration.
//   - tol: Per-channel tolerance.
//
// Returns:
//   - HSVBounds: min = max(0, min - tol), max = min(255, max + tol) per channel.
func ExpandBounds(raw HSVBounds, tol Tolerance) HSVBounds {
	h, s, v := max(tol.H, 0), max(tol.S, 0), max(tol.V, 0)
	return HSVBounds{
		HMin: clampChannel(raw.HMin - h),
		HMax: clampChannel(raw.HMax + h),
		SMin: clampChannel(raw.SMin - s),
		SMax: clampChannel(raw.SMax + s),
		VMin: clampChannel(raw.VMin - v),
		VMax: clampChannel(raw.VMax + v),
	}
}

// Channel returns the [min, max] range of channel c (0 = H, 1 = S, 2 = V).
func (b HSVBounds) Channel(c int) (lo, hi int) {
	switch c {
	case 0:
		return b.HMin, b.HMax
	case 1:
		return b.SMin, b.SMax
	default:
		return b.VMin, b.VMax
	}
}

// Scalars returns the range of channel c as inclusive lower and upper scalars
// for gocv.InRangeWithScalar.
func (b HSVBounds) Scalars(c int) (gocv.Scalar, gocv.Scalar) {
	lo, hi := b.Channel(c)
	return gocv.NewScalar(float64(lo), 0, 0, 0), gocv.NewScalar(float64(hi), 0, 0, 0)
}

func clampChannel(x int) int {
	return min(max(x, 0), ChannelMax)
}
