package capture

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// SyntheticSource renders a solid ball orbiting the frame centre over a flat
// background. Frames are deterministic: frame n always shows the ball at
// Position(n).
//
// @example
// src := NewSyntheticSource(image.Pt(640, 480))
// defer src.Close()
type SyntheticSource struct {
	// Background is the BGR fill behind the ball.
	Background color.RGBA
	// Ball is the colour of the ball.
	Ball color.RGBA
	// Radius of the ball in pixels.
	Radius int
	// Period is the number of frames per orbit.
	Period int

	mu     sync.Mutex
	size   image.Point
	frame  int
	canvas gocv.Mat
	closed bool
}

// NewSyntheticSource creates a source producing frames of the given size with an
// orange ball on a dark grey background.
func NewSyntheticSource(size image.Point) *SyntheticSource {
	radius := max(min(size.X, size.Y)/16, 2)
	return &SyntheticSource{
		Background: color.RGBA{R: 40, G: 40, B: 40},
		Ball:       color.RGBA{R: 255, G: 128, B: 0},
		Radius:     radius,
		Period:     120,
		size:       size,
		canvas:     gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3),
	}
}

// SyntheticOpener returns an Opener whose sources are SyntheticSources. Every
// device id yields the same scene.
func SyntheticOpener(size image.Point) Opener {
	return func(int) (Source, error) {
		return NewSyntheticSource(size), nil
	}
}

// Position returns the ball centre on frame n.
func (s *SyntheticSource) Position(n int) image.Point {
	period := max(s.Period, 1)
	angle := 2 * math.Pi * float64(n%period) / float64(period)
	rx := float64(s.size.X)/2 - float64(2*s.Radius)
	ry := float64(s.size.Y)/2 - float64(2*s.Radius)
	return image.Pt(
		s.size.X/2+int(math.Round(rx*math.Cos(angle))),
		s.size.Y/2+int(math.Round(ry*math.Sin(angle))),
	)
}

// Read renders the next frame into m.
func (s *SyntheticSource) Read(m *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.canvas.SetTo(gocv.NewScalar(float64(s.Background.B), float64(s.Background.G), float64(s.Background.R), 0))
	gocv.Circle(&s.canvas, s.Position(s.frame), s.Radius, s.Ball, -1)
	s.canvas.CopyTo(m)
	s.frame++
	return true
}

// Close releases the canvas. Reads after Close fail.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.canvas.Close()
}
