// Package overlay - Draws the tracker state over the camera image: object cursor,
// trail, contours, calibration pointer, status line and help panel.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/colortrack/controller"
	"github.com/nvr-ai/colortrack/detector"
	"github.com/nvr-ai/colortrack/motion"
	"gocv.io/x/gocv"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.RGBA{A: 255}
)

// Options are the toggles of the presentation layer.
type Options struct {
	ShowCamera   bool
	ShowContours bool
	ShowTrail    bool
	ShowHelp     bool
}

// Renderer composes the display image. It reuses one canvas across frames.
type Renderer struct {
	Options
	canvas gocv.Mat
}

// NewRenderer creates a Renderer.
//
// Always call Close() to release memory.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{Options: opts, canvas: gocv.NewMat()}
}

// Close releases the canvas.
func (r *Renderer) Close() {
	r.canvas.Close()
}

// Draw renders snap over frame into a canvas of the given display size.
//
// Arguments:
//   - size: The display size in pixels.
//   - frame: The mirrored camera frame, in frame-buffer pixels.
//   - snap: The tracker state of the frame.
//
// Returns:
//   - gocv.Mat: The canvas, owned by the renderer and overwritten by the next call.
func (r *Renderer) Draw(size image.Point, frame gocv.Mat, snap controller.Snapshot) gocv.Mat {
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(frame.Cols(), frame.Rows())
	}
	r.prepare(size)

	if r.ShowCamera && !frame.Empty() {
		pasteAt(&r.canvas, frame, snap.Offset)
	}
	if r.ShowContours {
		drawContours(&r.canvas, snap.Detection, snap.Offset)
	}

	cfg := snap.Config
	if cfg.SingleBlob {
		if r.ShowTrail {
			drawTrail(&r.canvas, snap.Trail, cfg.HistoryCapacity, size)
		}
		if snap.State.Valid() {
			drawObjectCursor(&r.canvas, motion.NormToWindow(snap.State.Position, size), size)
		}
	} else {
		for _, b := range snap.Detection.InRange(cfg.MinArea, cfg.MaxArea) {
			p := image.Pt(int(b.Centroid.X), int(b.Centroid.Y)).Add(snap.Offset)
			drawObjectCursor(&r.canvas, motion.Vec3{X: float32(p.X), Y: float32(p.Y)}, size)
		}
	}

	if snap.HasPointer {
		drawPointer(&r.canvas, snap.Pointer, cfg.SampleRadius)
	}
	if snap.Sent {
		drawStatus(&r.canvas, snap, size)
	}
	if r.ShowHelp {
		drawHelp(&r.canvas, snap)
	}
	return r.canvas
}

func (r *Renderer) prepare(size image.Point) {
	if r.canvas.Empty() || r.canvas.Cols() != size.X || r.canvas.Rows() != size.Y {
		r.canvas.Close()
		r.canvas = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC3)
	}
	r.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// pasteAt copies src into dst with its origin at off, cropping whatever falls
// outside dst.
func pasteAt(dst *gocv.Mat, src gocv.Mat, off image.Point) {
	if src.Type() != dst.Type() {
		return
	}
	bounds := image.Rect(0, 0, dst.Cols(), dst.Rows())
	target := image.Rect(0, 0, src.Cols(), src.Rows()).Add(off).Intersect(bounds)
	if target.Empty() {
		return
	}

	from := src.Region(target.Sub(off))
	defer from.Close()
	to := dst.Region(target)
	defer to.Close()
	from.CopyTo(&to)
}

// TrailStyle returns the radius and alpha of the trail sample of the given age
// among n slots: sqrt(z) * (n-age) / n and 32 * (n-age) / n.
//
// Arguments:
//   - zWindow: The sample area in display pixels.
//   - age: Frames since the sample was recorded, 0 for the current frame.
//   - n: The history capacity.
//
// Returns:
//   - float32: Circle radius in pixels.
//   - uint8: Alpha in 0..32.
func TrailStyle(zWindow float32, age, n int) (float32, uint8) {
	if n <= 0 || age >= n || zWindow <= 0 {
		return 0, 0
	}
	fade := float32(n-age) / float32(n)
	return math32.Sqrt(zWindow) * fade, uint8(32 * (n - age) / n)
}

func drawTrail(canvas *gocv.Mat, trail []motion.TrailPoint, capacity int, size image.Point) {
	// Oldest first, so newer samples are blended on top.
	for i := len(trail) - 1; i >= 0; i-- {
		tp := trail[i]
		w := motion.NormToWindow(tp.Position, size)
		radius, alpha := TrailStyle(w.Z, tp.Age, capacity)
		if radius < 1 || alpha == 0 {
			continue
		}
		blendCircle(canvas, image.Pt(int(w.X), int(w.Y)), int(radius), white, float64(alpha)/255)
	}
}

// blendCircle draws a filled circle with the given opacity.
func blendCircle(canvas *gocv.Mat, c image.Point, radius int, col color.RGBA, alpha float64) {
	bounds := image.Rect(0, 0, canvas.Cols(), canvas.Rows())
	rect := image.Rect(c.X-radius-1, c.Y-radius-1, c.X+radius+2, c.Y+radius+2).Intersect(bounds)
	if rect.Empty() {
		return
	}

	roi := canvas.Region(rect)
	defer roi.Close()
	layer := roi.Clone()
	defer layer.Close()

	gocv.Circle(&layer, c.Sub(rect.Min), radius, col, -1)
	gocv.AddWeighted(layer, alpha, roi, 1-alpha, 0, &roi)
}

func drawObjectCursor(canvas *gocv.Mat, w motion.Vec3, size image.Point) {
	c := image.Pt(int(w.X), int(w.Y))
	gocv.Circle(canvas, c, max(1, size.X/100), black, -1)
	gocv.Circle(canvas, c, max(1, size.X/150), white, -1)
}

func drawPointer(canvas *gocv.Mat, p image.Point, radius int) {
	blendCircle(canvas, p, radius, white, 64.0/255)
	gocv.Circle(canvas, p, radius, white, 1)
}

func drawContours(canvas *gocv.Mat, result detector.Result, off image.Point) {
	contours := result.Contours()
	if len(contours) == 0 {
		return
	}
	shifted := make([][]image.Point, len(contours))
	for i, c := range contours {
		shifted[i] = make([]image.Point, len(c))
		for j, p := range c {
			shifted[i][j] = p.Add(off)
		}
	}
	pv := gocv.NewPointsVectorFromPoints(shifted)
	defer pv.Close()
	gocv.DrawContours(canvas, pv, -1, white, 1)
}

// StatusLines returns the status text shown while messages are being sent.
func StatusLines(snap controller.Snapshot) []string {
	p := snap.State.Position
	return []string{
		fmt.Sprintf("Sending message %s to %s on port %d", snap.Config.Address, snap.Config.Host, snap.Config.Port),
		fmt.Sprintf("X=%g, Y=%g, Z=%g", p.X, p.Y, p.Z),
	}
}

func drawStatus(canvas *gocv.Mat, snap controller.Snapshot, size image.Point) {
	lines := StatusLines(snap)
	putText(canvas, lines[0], image.Pt(10, size.Y-50))
	putText(canvas, lines[1], image.Pt(10, size.Y-20))
}

// HelpLines returns the help panel text.
func HelpLines(snap controller.Snapshot) []string {
	cfg := snap.Config
	raw, exp := snap.Raw, snap.Expanded
	return []string{
		"1: camera   2: contours   3: trail   s: help",
		fmt.Sprintf("l: smoothing (%s)   b: single blob (%s)", onOff(cfg.Smoothing), onOff(cfg.SingleBlob)),
		"click: calibrate   c: calibrate at center   n: next camera   q: quit",
		fmt.Sprintf("tolerance h=%d s=%d v=%d   radius %d", cfg.Tolerance.H, cfg.Tolerance.S, cfg.Tolerance.V, cfg.SampleRadius),
		fmt.Sprintf("area %.0f < a < %.0f", cfg.MinArea, cfg.MaxArea),
		fmt.Sprintf("fps %.1f   jitter %.1fms   send failures %d",
			snap.FPS, float64(snap.Jitter)/float64(time.Millisecond), snap.SendFailures),
		fmt.Sprintf("raw H %d-%d S %d-%d V %d-%d", raw.HMin, raw.HMax, raw.SMin, raw.SMax, raw.VMin, raw.VMax),
		fmt.Sprintf("tol H %d-%d S %d-%d V %d-%d", exp.HMin, exp.HMax, exp.SMin, exp.SMax, exp.VMin, exp.VMax),
	}
}

func drawHelp(canvas *gocv.Mat, snap controller.Snapshot) {
	for i, line := range HelpLines(snap) {
		putText(canvas, line, image.Pt(10, 20+18*i))
	}
}

func putText(canvas *gocv.Mat, text string, at image.Point) {
	gocv.PutText(canvas, text, at, gocv.FontHersheyPlain, 1.0, color.RGBA{R: 255, G: 255, B: 255, A: 200}, 1)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
