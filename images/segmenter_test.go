package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// newPatchFrame returns a black BGR frame with a filled pure red square.
func newPatchFrame(t *testing.T, width, height int, patch image.Rectangle) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Rectangle(&frame, patch, color.RGBA{R: 255, A: 255}, -1)
	return frame
}

func TestColorSegmenter_TracksCalibratedPatch(t *testing.T) {
	frame := newPatchFrame(t, 640, 480, image.Rect(100, 100, 200, 200))
	defer frame.Close()

	seg := NewColorSegmenter()
	defer seg.Close()

	_, err := seg.Segment(frame, HSVBounds{})
	require.NoError(t, err)
	require.Equal(t, image.Pt(640, 480), seg.Size())

	// The frame is mirrored, so the patch now spans x in [440, 540).
	raw := SampleBounds(seg, image.Pt(490, 150), 12)
	assert.Equal(t, ChannelMax, raw.SMin)
	assert.Equal(t, ChannelMax, raw.VMin)

	mask, err := seg.Segment(frame, ExpandBounds(raw, DefaultTolerance()))
	require.NoError(t, err)

	assert.Equal(t, uint8(255), mask.GetUCharAt(150, 490), "patch center")
	assert.Equal(t, uint8(0), mask.GetUCharAt(150, 150), "unmirrored position")
	assert.Equal(t, uint8(0), mask.GetUCharAt(10, 10), "background")

	area := gocv.CountNonZero(mask)
	assert.InDelta(t, 100*100, area, 100*100*0.15)
}

func TestColorSegmenter_Deterministic(t *testing.T) {
	frame := newPatchFrame(t, 320, 240, image.Rect(40, 40, 90, 90))
	defer frame.Close()
	bounds := ExpandBounds(HSVBounds{HMin: 0, HMax: 0, SMin: 255, SMax: 255, VMin: 255, VMax: 255}, DefaultTolerance())

	checksums := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		seg := NewColorSegmenter()
		mask, err := seg.Segment(frame, bounds)
		require.NoError(t, err)
		checksums = append(checksums, ComputeMatChecksum(mask))
		seg.Close()
	}

	assert.Equal(t, checksums[0], checksums[1])
}

func TestColorSegmenter_CleanupRemovesSpecks(t *testing.T) {
	seg := NewColorSegmenter()
	defer seg.Close()

	seg.Mask.Close()
	seg.Mask = gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC1)
	seg.Mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	// A single isolated pixel and a solid block.
	seg.Mask.SetUCharAt(10, 10, 255)
	gocv.Rectangle(&seg.Mask, image.Rect(40, 40, 80, 80), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	require.NoError(t, seg.CleanupMask())

	assert.Equal(t, uint8(0), seg.Mask.GetUCharAt(10, 10))
	assert.Equal(t, uint8(255), seg.Mask.GetUCharAt(60, 60))
}

func TestColorSegmenter_SizeBeforeFirstFrame(t *testing.T) {
	seg := NewColorSegmenter()
	defer seg.Close()

	assert.Equal(t, image.Point{}, seg.Size())
	assert.Equal(t, HSVBounds{}, SampleBounds(seg, image.Pt(5, 5), 3))
}

func TestColorSegmenter_PlanesReusedAcrossFrames(t *testing.T) {
	frame := newPatchFrame(t, 160, 120, image.Rect(20, 20, 60, 60))
	defer frame.Close()

	seg := NewColorSegmenter()
	defer seg.Close()

	_, err := seg.Segment(frame, HSVBounds{})
	require.NoError(t, err)

	var first [3]*uint8
	for c := range seg.Planes {
		require.Equal(t, 1, seg.Planes[c].Channels())
		data, err := seg.Planes[c].DataPtrUint8()
		require.NoError(t, err)
		first[c] = &data[0]
	}

	_, err = seg.Segment(frame, HSVBounds{})
	require.NoError(t, err)

	for c := range seg.Planes {
		data, err := seg.Planes[c].DataPtrUint8()
		require.NoError(t, err)
		assert.Same(t, first[c], &data[0], "plane %d reallocated", c)
	}

	// Mirrored patch centre: S and V of pure red are saturated.
	h, s, v := seg.HSVAt(120, 40)
	assert.Equal(t, uint8(0), h)
	assert.Equal(t, uint8(255), s)
	assert.Equal(t, uint8(255), v)
}
