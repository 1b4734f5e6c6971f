package statusfeed

import (
	"github.com/nvr-ai/colortrack/images"
	"gocv.io/x/gocv"
)

// MaskPublisher attaches a mask thumbnail to frames whenever the mask changed.
type MaskPublisher struct {
	Width int
	last  string
}

// Attach sets f.Mask to a PNG thumbnail of mask unless it is identical to the last
// attached one.
//
// Arguments:
//   - f: The frame to publish.
//   - mask: The binary mask of the frame.
//
// Returns:
//   - bool: Whether a thumbnail was attached.
//   - error: An error if the thumbnail could not be encoded.
func (p *MaskPublisher) Attach(f *Frame, mask gocv.Mat) (bool, error) {
	sum := images.ComputeMatChecksum(mask)
	if sum == p.last || mask.Empty() {
		return false, nil
	}
	thumb, err := images.Thumbnail(mask, p.Width, images.FormatPNG)
	if err != nil {
		return false, err
	}
	p.last = sum
	f.Mask = &thumb
	return true, nil
}
