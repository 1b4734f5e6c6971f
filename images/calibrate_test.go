package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// gridPlanes is an in-memory ChannelPlanes whose channel values are computed
// from the pixel position.
type gridPlanes struct {
	size image.Point
	at   func(x, y int) (uint8, uint8, uint8)
	seen map[image.Point]int
}

func (g *gridPlanes) Size() image.Point { return g.size }

func (g *gridPlanes) HSVAt(x, y int) (uint8, uint8, uint8) {
	if g.seen != nil {
		g.seen[image.Pt(x, y)]++
	}
	return g.at(x, y)
}

func TestSampleBounds_Neighborhood(t *testing.T) {
	planes := &gridPlanes{
		size: image.Pt(64, 48),
		at: func(x, y int) (uint8, uint8, uint8) {
			return uint8(x), uint8(y), uint8(x + y)
		},
	}

	got := SampleBounds(planes, image.Pt(20, 10), 2)

	assert.Equal(t, HSVBounds{HMin: 18, HMax: 22, SMin: 8, SMax: 12, VMin: 26, VMax: 34}, got)
}

func TestSampleBounds_VisitsSquare(t *testing.T) {
	planes := &gridPlanes{
		size: image.Pt(64, 48),
		at:   func(x, y int) (uint8, uint8, uint8) { return 0, 0, 0 },
		seen: map[image.Point]int{},
	}

	SampleBounds(planes, image.Pt(30, 30), 3)

	assert.Len(t, planes.seen, 7*7)
}

func TestSampleBounds_WrapsAtEdges(t *testing.T) {
	planes := &gridPlanes{
		size: image.Pt(10, 10),
		at: func(x, y int) (uint8, uint8, uint8) {
			return uint8(x), uint8(y), 100
		},
		seen: map[image.Point]int{},
	}

	got := SampleBounds(planes, image.Pt(0, 9), 1)

	// Columns 9, 0, 1 and rows 8, 9, 0.
	assert.Equal(t, HSVBounds{HMin: 0, HMax: 9, SMin: 0, SMax: 9, VMin: 100, VMax: 100}, got)
	assert.Contains(t, planes.seen, image.Pt(9, 0))
	for p := range planes.seen {
		assert.True(t, p.In(image.Rect(0, 0, 10, 10)), "sampled %v outside the frame", p)
	}
}

func TestSampleBounds_FarOutsideFrame(t *testing.T) {
	planes := &gridPlanes{
		size: image.Pt(10, 10),
		at:   func(x, y int) (uint8, uint8, uint8) { return uint8(x), uint8(y), 7 },
	}

	got := SampleBounds(planes, image.Pt(-25, 33), 0)

	assert.Equal(t, HSVBounds{HMin: 5, HMax: 5, SMin: 3, SMax: 3, VMin: 7, VMax: 7}, got)
}

func TestSampleBounds_NoFrame(t *testing.T) {
	planes := &gridPlanes{at: func(x, y int) (uint8, uint8, uint8) { return 1, 1, 1 }}
	assert.Equal(t, HSVBounds{}, SampleBounds(planes, image.Pt(3, 3), 5))
}

func TestDisplayOffset(t *testing.T) {
	assert.Equal(t, image.Point{}, DisplayOffset(image.Pt(640, 480), image.Pt(640, 480)))
	assert.Equal(t, image.Pt(320, 120), DisplayOffset(image.Pt(1280, 720), image.Pt(640, 480)))
	assert.Equal(t, image.Pt(-160, -120), DisplayOffset(image.Pt(320, 240), image.Pt(640, 480)))
}
