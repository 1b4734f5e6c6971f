package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_StartsWithSentinels(t *testing.T) {
	h := NewHistory(5)
	require.Equal(t, 5, h.Capacity())
	for i := 0; i < h.Capacity(); i++ {
		assert.True(t, h.At(i).IsSentinel(), "slot %d", i)
	}
	assert.Empty(t, h.Trail())
}

func TestHistory_InvalidCapacityFallsBack(t *testing.T) {
	assert.Equal(t, DefaultHistoryCapacity, NewHistory(0).Capacity())
	assert.Equal(t, DefaultHistoryCapacity, NewHistory(-3).Capacity())
	assert.Equal(t, MinHistoryCapacity, NewHistory(1).Capacity())
	assert.Equal(t, MinHistoryCapacity, NewHistory(2).Capacity())
}

func TestHistory_AdvanceWraps(t *testing.T) {
	h := NewHistory(3)
	cursors := []int{}
	for i := 0; i < 7; i++ {
		h.Advance()
		cursors = append(cursors, h.Cursor())
	}
	assert.Equal(t, []int{1, 2, 0, 1, 2, 0, 1}, cursors)
}

func TestHistory_OffsetLooksBackAcrossWrap(t *testing.T) {
	h := NewHistory(4)
	// Cursor 0 holds a, then slots 1, 2, 3 and back to 0.
	values := []Vec3{{X: 0.1}, {X: 0.2}, {X: 0.3}, {X: 0.4}, {X: 0.5}}
	h.Put(values[0])
	for _, v := range values[1:] {
		h.Advance()
		h.Put(v)
	}

	require.Equal(t, 0, h.Cursor())
	assert.Equal(t, values[4], h.Current())
	assert.Equal(t, values[3], h.Offset(-1))
	assert.Equal(t, values[2], h.Offset(-2))
	assert.Equal(t, values[1], h.Offset(-3))
	assert.Equal(t, values[4], h.Offset(-4))
}

func TestHistory_TrailNewestFirst(t *testing.T) {
	h := NewHistory(4)
	a, b := Vec3{X: 0.1, Y: 0.1, Z: 0.01}, Vec3{X: 0.2, Y: 0.2, Z: 0.02}

	h.Advance()
	h.Put(a)
	h.Advance()
	h.Put(Sentinel)
	h.Advance()
	h.Put(b)

	trail := h.Trail()
	require.Len(t, trail, 2)
	assert.Equal(t, TrailPoint{Position: b, Age: 0}, trail[0])
	assert.Equal(t, TrailPoint{Position: a, Age: 2}, trail[1])
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(3)
	h.Advance()
	h.Put(Vec3{X: 0.5})
	h.Reset()

	assert.Equal(t, 0, h.Cursor())
	assert.True(t, h.At(1).IsSentinel())
}
