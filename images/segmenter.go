// Package images - This file contains the color segmentation pipeline that turns
// a camera frame into a binary mask of pixels matching the calibrated color.
//
// Pipeline Overview:
//
// ┌──────────────┐
// │ Camera Frame │
// └──────┬───────┘
// ┌────────────────────────────┐
// │ Mirror (horizontal flip)   │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ BGR -> HSV (full range)    │
// │ Blur 10x10                 │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Split H, S, V planes       │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Per-channel in-range masks │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ H AND S AND V              │
// └──────┬─────────────────────┘
// ┌────────────────────────────────────┐
// │ Erode, dilate, dilate, erode (5x5) │
// └──────┬─────────────────────────────┘
// ┌────────────────────────────┐
// │ Binary Mask                │
// └────────────────────────────┘
//
// Usage:
//
//	seg := images.NewColorSegmenter()
//	defer seg.Close()
//
//	for {
//	    frame := getNextFrame()
//	    mask, err := seg.Segment(frame, bounds)
//	    ...
//	}
//
// Note: You must call Close() when finished to release native resources.
package images

import (
	"image"

	"gocv.io/x/gocv"
)

// Plane indexes into ColorSegmenter.Planes and ColorSegmenter.Masks.
const (
	PlaneH = iota
	PlaneS
	PlaneV
)

// DefaultBlurSize is the box blur kernel applied to the HSV frame.
var DefaultBlurSize = image.Pt(10, 10)

// DefaultKernelSize is the elliptical structuring element used for mask cleanup.
var DefaultKernelSize = image.Pt(5, 5)

// ColorSegmenter holds every buffer of the mask pipeline. The Mats are allocated
// on the first frame and reused, in place, on every frame after that.
//
// This struct is stateful and optimized for reuse across frames in a video stream.
// Always call Close() when done to release native resources.
type ColorSegmenter struct {
	Mirrored gocv.Mat    // Mirrored camera frame, as shown to the user.
	HSV      gocv.Mat    // Blurred full-range HSV frame.
	Planes   [3]gocv.Mat // H, S and V planes of HSV.
	Masks    [3]gocv.Mat // Per-channel in-range masks.
	Mask     gocv.Mat    // Combined and cleaned binary mask.
	Kernel   gocv.Mat    // Elliptical structuring element.
	BlurSize image.Point // Box blur kernel size.
}

// NewColorSegmenter constructs a ColorSegmenter with empty buffers and the
// default 5x5 elliptical kernel.
//
// Always call Close() to release memory.
func NewColorSegmenter() *ColorSegmenter {
	m := &ColorSegmenter{
		Mirrored: gocv.NewMat(),
		HSV:      gocv.NewMat(),
		Mask:     gocv.NewMat(),
		Kernel:   gocv.GetStructuringElement(gocv.MorphEllipse, DefaultKernelSize),
		BlurSize: DefaultBlurSize,
	}
	for i := range m.Planes {
		m.Planes[i] = gocv.NewMat()
		m.Masks[i] = gocv.NewMat()
	}
	return m
}

// Mirror flips the frame around the vertical axis into Mirrored.
//
// Arguments:
//   - frame: The BGR camera frame.
func (m *ColorSegmenter) Mirror(frame gocv.Mat) {
	gocv.Flip(frame, &m.Mirrored, 1)
}

// ConvertHSV converts Mirrored to full-range HSV (hue spans 0..255) and blurs it
// to suppress sensor noise before thresholding.
func (m *ColorSegmenter) ConvertHSV() {
	gocv.CvtColor(m.Mirrored, &m.HSV, gocv.ColorBGRToHSVFull)
	gocv.Blur(m.HSV, &m.HSV, m.BlurSize)
}

// SplitChannels extracts each channel of HSV into its persistent plane.
func (m *ColorSegmenter) SplitChannels() {
	for c := range m.Planes {
		gocv.ExtractChannel(m.HSV, &m.Planes[c], c)
	}
}

// ApplyThreshold sets a pixel of each channel mask when the channel value lies
// inside that channel's range of bounds, inclusive on both ends.
//
// Arguments:
//   - bounds: The expanded calibration bounds.
func (m *ColorSegmenter) ApplyThreshold(bounds HSVBounds) {
	for c := range m.Planes {
		lo, hi := bounds.Scalars(c)
		gocv.InRangeWithScalar(m.Planes[c], lo, hi, &m.Masks[c])
	}
}

// CombineMasks writes H AND S AND V into Mask.
func (m *ColorSegmenter) CombineMasks() {
	gocv.BitwiseAnd(m.Masks[PlaneH], m.Masks[PlaneS], &m.Mask)
	gocv.BitwiseAnd(m.Mask, m.Masks[PlaneV], &m.Mask)
}

// CleanupMask opens then closes the mask: erode and dilate drop isolated specks,
// dilate and erode fill small holes in the blobs that survive.
func (m *ColorSegmenter) CleanupMask() error {
	if err := gocv.Erode(m.Mask, &m.Mask, m.Kernel); err != nil {
		return err
	}
	if err := gocv.Dilate(m.Mask, &m.Mask, m.Kernel); err != nil {
		return err
	}
	if err := gocv.Dilate(m.Mask, &m.Mask, m.Kernel); err != nil {
		return err
	}
	return gocv.Erode(m.Mask, &m.Mask, m.Kernel)
}

// Segment runs the full pipeline on one frame:
//
//  1. Mirror
//  2. HSV conversion and blur
//  3. Channel split
//  4. Per-channel thresholds
//  5. AND of the three masks
//  6. Morphological cleanup
//
// Arguments:
//   - frame: The BGR camera frame.
//   - bounds: The expanded calibration bounds.
//
// Returns:
//   - gocv.Mat: The cleaned mask. It is owned by the segmenter and overwritten on
//     the next call.
//   - error: An error if a morphology step fails.
func (m *ColorSegmenter) Segment(frame gocv.Mat, bounds HSVBounds) (gocv.Mat, error) {
	m.Mirror(frame)
	m.ConvertHSV()
	m.SplitChannels()
	m.ApplyThreshold(bounds)
	m.CombineMasks()
	if err := m.CleanupMask(); err != nil {
		return m.Mask, err
	}
	return m.Mask, nil
}

// Size implements ChannelPlanes. It is zero until the first frame is split.
func (m *ColorSegmenter) Size() image.Point {
	p := m.Planes[PlaneH]
	if p.Empty() {
		return image.Point{}
	}
	return image.Pt(p.Cols(), p.Rows())
}

// HSVAt implements ChannelPlanes.
func (m *ColorSegmenter) HSVAt(x, y int) (h, s, v uint8) {
	return m.Planes[PlaneH].GetUCharAt(y, x),
		m.Planes[PlaneS].GetUCharAt(y, x),
		m.Planes[PlaneV].GetUCharAt(y, x)
}

// Close releases all OpenCV native resources used by the segmenter.
func (m *ColorSegmenter) Close() {
	m.Mirrored.Close()
	m.HSV.Close()
	for i := range m.Planes {
		m.Planes[i].Close()
		m.Masks[i].Close()
	}
	m.Mask.Close()
	m.Kernel.Close()
}
