package motion

import "github.com/nvr-ai/colortrack/common"

// DefaultHistoryCapacity is the number of frames kept when no capacity is configured.
const DefaultHistoryCapacity = 50

// MinHistoryCapacity keeps the current slot and the two behind it distinct.
const MinHistoryCapacity = 3

// History is a fixed-capacity circular buffer of normalized positions.
//
// The write cursor moves one slot per processed frame and wraps modulo the
// capacity. Every slot starts as the Sentinel. History is not safe for concurrent
// use; the owning tracker serializes access.
type History struct {
	buf    []Vec3
	cursor int
}

// TrailPoint is one stored position together with its age in frames (0 = newest).
type TrailPoint struct {
	Position Vec3
	Age      int
}

// NewHistory creates a history with the given capacity, filled with the Sentinel.
// A capacity below 1 falls back to DefaultHistoryCapacity and one below
// MinHistoryCapacity is raised to it.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	capacity = max(capacity, MinHistoryCapacity)
	h := &History{buf: make([]Vec3, capacity)}
	h.Reset()
	return h
}

// Reset marks every slot as "no detection" and rewinds the cursor.
func (h *History) Reset() {
	for i := range h.buf {
		h.buf[i] = Sentinel
	}
	h.cursor = 0
}

// Capacity returns the fixed number of slots.
func (h *History) Capacity() int {
	return len(h.buf)
}

// Cursor returns the index of the slot written this frame.
func (h *History) Cursor() int {
	return h.cursor
}

// Advance moves the write cursor to the next slot.
func (h *History) Advance() {
	h.cursor = common.Modn(h.cursor+1, len(h.buf))
}

// Put stores v in the current slot.
func (h *History) Put(v Vec3) {
	h.buf[h.cursor] = v
}

// Current returns the value of the current slot.
func (h *History) Current() Vec3 {
	return h.buf[h.cursor]
}

// Offset returns the slot k frames away from the cursor. Negative k looks back in
// time: Offset(-1) is the previous frame.
func (h *History) Offset(k int) Vec3 {
	return h.buf[common.Modn(h.cursor+k, len(h.buf))]
}

// At returns the raw slot i, wrapped into range.
func (h *History) At(i int) Vec3 {
	return h.buf[common.Modn(i, len(h.buf))]
}

// Trail returns every slot from newest to oldest. Sentinel slots are skipped but
// still count towards the age of older points.
func (h *History) Trail() []TrailPoint {
	n := len(h.buf)
	out := make([]TrailPoint, 0, n)
	age := 0
	for i := h.cursor + n; i > h.cursor; i-- {
		v := h.buf[common.Modn(i, n)]
		if !v.IsSentinel() {
			out = append(out, TrailPoint{Position: v, Age: age})
		}
		age++
	}
	return out
}
