package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearAllocateSequential(t *testing.T) {
	r := NewRegion(RegionSystem, 0x1000, 0x4000)

	a, ok := r.LinearAllocate(0x1000)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1000), a)

	b, ok := r.LinearAllocate(0x800)
	require.True(t, ok)
	assert.Equal(t, uint32(0x2000), b)

	assert.Equal(t, uint32(0x1800), r.Used())
}

func TestLinearAllocateExhaustion(t *testing.T) {
	r := NewRegion(RegionBase, 0, 0x2000)

	_, ok := r.LinearAllocate(0x2000)
	require.True(t, ok)

	_, ok = r.LinearAllocate(1)
	assert.False(t, ok)

	// Larger than the whole region fails up front.
	_, ok = NewRegion(RegionBase, 0, 0x1000).LinearAllocate(0x2000)
	assert.False(t, ok)
}

func TestLinearAllocateZero(t *testing.T) {
	r := NewRegion(RegionSystem, 0, 0x1000)
	_, ok := r.LinearAllocate(0)
	assert.False(t, ok)
}

func TestFreeCoalesces(t *testing.T) {
	r := NewRegion(RegionApplication, 0, 0x4000)

	var offsets []uint32
	for i := 0; i < 4; i++ {
		off, ok := r.LinearAllocate(0x1000)
		require.True(t, ok)
		offsets = append(offsets, off)
	}
	_, ok := r.LinearAllocate(1)
	require.False(t, ok)

	// Free out of order; the free set must still fold back into one
	// interval covering the whole region.
	r.Free(offsets[2], 0x1000)
	r.Free(offsets[0], 0x1000)
	r.Free(offsets[3], 0x1000)
	r.Free(offsets[1], 0x1000)
	assert.Equal(t, uint32(0), r.Used())

	off, ok := r.LinearAllocate(0x4000)
	require.True(t, ok)
	assert.Equal(t, uint32(0), off)
}

func TestHeapAllocateDiscontiguous(t *testing.T) {
	r := NewRegion(RegionSystem, 0, 0x4000)

	a, ok := r.LinearAllocate(0x1000)
	require.True(t, ok)
	b, ok := r.LinearAllocate(0x1000)
	require.True(t, ok)
	c, ok := r.LinearAllocate(0x1000)
	require.True(t, ok)
	require.Equal(t, []uint32{0, 0x1000, 0x2000}, []uint32{a, b, c})

	// Poke holes at both ends of b.
	r.Free(a, 0x1000)
	r.Free(c, 0x1000)

	got := r.HeapAllocate(0x2800)
	require.Len(t, got, 2)
	assert.Equal(t, Interval{Lower: 0, Upper: 0x1000}, got[0])
	assert.Equal(t, Interval{Lower: 0x2000, Upper: 0x3800}, got[1])

	var total uint32
	for _, iv := range got {
		total += iv.Size()
	}
	assert.Equal(t, uint32(0x2800), total)
}

func TestHeapAllocateInsufficientLeavesRegionIntact(t *testing.T) {
	r := NewRegion(RegionSystem, 0, 0x2000)

	_, ok := r.LinearAllocate(0x1000)
	require.True(t, ok)

	usedBefore := r.Used()
	assert.Nil(t, r.HeapAllocate(0x1800))
	assert.Equal(t, usedBefore, r.Used())

	// The remaining space is still allocatable in one piece.
	got := r.HeapAllocate(0x1000)
	require.Len(t, got, 1)
	assert.Equal(t, Interval{Lower: 0x1000, Upper: 0x2000}, got[0])
}

func TestCarve(t *testing.T) {
	regions, err := Carve(DefaultApplicationSize, DefaultSystemSize, DefaultBaseSize)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), regions[RegionApplication].Base())
	assert.Equal(t, DefaultApplicationSize, regions[RegionSystem].Base())
	assert.Equal(t, DefaultApplicationSize+DefaultSystemSize, regions[RegionBase].Base())
	assert.Equal(t, FCRAMSize,
		regions[RegionApplication].Size()+regions[RegionSystem].Size()+regions[RegionBase].Size())

	_, err = Carve(FCRAMSize, FCRAMSize, 0)
	assert.ErrorIs(t, err, ErrNotEnoughSpace)
}
