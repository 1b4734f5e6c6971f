package images

import (
	"image"
	"math"

	"github.com/nvr-ai/colortrack/common"
)

// ChannelPlanes gives per-pixel access to the three HSV planes of a frame.
type ChannelPlanes interface {
	// Size returns the plane width and height. A zero size means no frame yet.
	Size() image.Point
	// HSVAt returns the three channel values at column x, row y.
	HSVAt(x, y int) (h, s, v uint8)
}

// SampleBounds measures the min and max of every channel over the
// (2r+1)x(2r+1) square centered on center, in frame-buffer coordinates.
//
// Coordinates outside the frame wrap around to the opposite edge instead of
// being clamped, so any center yields a well-defined sample. The result replaces
// any earlier calibration; nothing is averaged across calls.
//
// Arguments:
//   - planes: The HSV planes of the latest frame.
//   - center: Sample center in frame-buffer pixels.
//   - radius: Half the side of the sampled square; negative values sample one pixel.
//
// Returns:
//   - HSVBounds: Raw bounds, or the zero bounds when planes holds no frame.
func SampleBounds(planes ChannelPlanes, center image.Point, radius int) HSVBounds {
	size := planes.Size()
	if size.X <= 0 || size.Y <= 0 {
		return HSVBounds{}
	}
	r := max(radius, 0)

	b := HSVBounds{HMin: ChannelMax, SMin: ChannelMax, VMin: ChannelMax}
	for i := -r; i <= r; i++ {
		for j := -r; j <= r; j++ {
			x := common.Modn(center.X+i, size.X)
			y := common.Modn(center.Y+j, size.Y)
			hv, sv, vv := planes.HSVAt(x, y)
			h, s, v := int(hv), int(sv), int(vv)

			b.HMin, b.HMax = min(b.HMin, h), max(b.HMax, h)
			b.SMin, b.SMax = min(b.SMin, s), max(b.SMax, s)
			b.VMin, b.VMax = min(b.VMin, v), max(b.VMax, v)
		}
	}
	return b
}

// DisplayOffset returns where a frame of size frame sits when centered in a
// display of size display. Subtracting it converts display coordinates into
// frame-buffer coordinates.
func DisplayOffset(display, frame image.Point) image.Point {
	return image.Point{
		X: int(math.Round(float64(display.X)/2.0 - float64(frame.X)/2.0)),
		Y: int(math.Round(float64(display.Y)/2.0 - float64(frame.Y)/2.0)),
	}
}
