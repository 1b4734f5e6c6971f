// Package detector - Blob extraction from a binary mask: external contours, their
// spatial moments and the largest-blob sweep.
package detector

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// NoBlob is the ArgMax of a Result without a usable blob.
const NoBlob = -1

// Moments are the zeroth and first spatial moments of a contour polygon.
type Moments struct {
	M00 float64 `json:"m00"`
	M10 float64 `json:"m10"`
	M01 float64 `json:"m01"`
}

// Point2f is a sub-pixel position.
type Point2f struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Blob is one external contour with its moments.
type Blob struct {
	Contour []image.Point `json:"-"`
	Moments Moments       `json:"moments"`
	// Centroid is only meaningful when HasCentroid is set, i.e. the area is > 0.
	Centroid    Point2f `json:"centroid"`
	HasCentroid bool    `json:"has_centroid"`
}

// Area returns the zeroth moment.
func (b Blob) Area() float64 {
	return b.Moments.M00
}

// Result is the blob analysis of one mask.
type Result struct {
	Blobs   []Blob  `json:"blobs"`
	MaxArea float64 `json:"max_area"`
	ArgMax  int     `json:"argmax"`
}

// ContourMoments computes the moments of the polygon described by contour with
// Green's theorem, the way OpenCV treats a point set. The result is independent
// of the contour orientation. Degenerate polygons (fewer than 3 points, or
// collinear points) have zero moments.
//
// Arguments:
//   - contour: Polygon vertices in order; the polygon is closed implicitly.
//
// Returns:
//   - Moments: m00 is the polygon area, m10/m00 and m01/m00 its centroid.
func ContourMoments(contour []image.Point) Moments {
	n := len(contour)
	if n < 3 {
		return Moments{}
	}

	var a00, a10, a01 float64
	prev := contour[n-1]
	for _, p := range contour {
		xp, yp := float64(prev.X), float64(prev.Y)
		x, y := float64(p.X), float64(p.Y)
		dxy := xp*y - x*yp
		a00 += dxy
		a10 += dxy * (xp + x)
		a01 += dxy * (yp + y)
		prev = p
	}

	if math.Abs(a00) <= 1e-12 {
		return Moments{}
	}
	sign := 1.0
	if a00 < 0 {
		sign = -1.0
	}
	return Moments{
		M00: sign * a00 / 2,
		M10: sign * a10 / 6,
		M01: sign * a01 / 6,
	}
}

// Analyze computes moments and centroids for every contour and finds the largest
// blob.
//
// The sweep keeps the first index reaching the maximum: a later contour must be
// strictly larger to take over. Zero-area contours never win, so a Result whose
// contours all have zero area has ArgMax NoBlob.
//
// Arguments:
//   - contours: External contours in the order they were found.
//
// Returns:
//   - Result: One Blob per contour, in the same order, plus MaxArea and ArgMax.
func Analyze(contours [][]image.Point) Result {
	r := Result{
		Blobs:  make([]Blob, len(contours)),
		ArgMax: NoBlob,
	}
	for i, c := range contours {
		m := ContourMoments(c)
		b := Blob{Contour: c, Moments: m}
		if m.M00 > 0 {
			b.Centroid = Point2f{X: m.M10 / m.M00, Y: m.M01 / m.M00}
			b.HasCentroid = true
		}
		r.Blobs[i] = b

		if m.M00 > r.MaxArea {
			r.MaxArea = m.M00
			r.ArgMax = i
		}
	}
	return r
}

// Detect extracts the external contours of mask, keeping only the vertices that
// describe straight segments, and analyzes them.
//
// Arguments:
//   - mask: A single-channel binary mask.
//
// Returns:
//   - Result: The blob analysis; an empty mask yields no blobs and ArgMax NoBlob.
func Detect(mask gocv.Mat) Result {
	if mask.Empty() {
		return Analyze(nil)
	}
	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	return Analyze(contours.ToPoints())
}

// Contours returns the contour of every blob, in order.
func (r Result) Contours() [][]image.Point {
	out := make([][]image.Point, len(r.Blobs))
	for i, b := range r.Blobs {
		out[i] = b.Contour
	}
	return out
}

// Largest returns the blob at ArgMax.
func (r Result) Largest() (Blob, bool) {
	if r.ArgMax < 0 || r.ArgMax >= len(r.Blobs) {
		return Blob{}, false
	}
	return r.Blobs[r.ArgMax], true
}

// Accepts reports whether the largest blob is a usable detection: there is at
// least one contour, ArgMax is in range and minArea < MaxArea < maxArea.
func (r Result) Accepts(minArea, maxArea float64) bool {
	if _, ok := r.Largest(); !ok {
		return false
	}
	return minArea < r.MaxArea && r.MaxArea < maxArea
}

// InRange returns every blob whose area lies strictly between minArea and
// maxArea.
func (r Result) InRange(minArea, maxArea float64) []Blob {
	var out []Blob
	for _, b := range r.Blobs {
		if b.HasCentroid && minArea < b.Area() && b.Area() < maxArea {
			out = append(out, b)
		}
	}
	return out
}
