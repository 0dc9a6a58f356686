// Package memory tracks the emulated console's physical memory: the
// FCRAM layout constants and the per-region interval allocators that
// hand out offsets into it.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Workiva/go-datastructures/augmentedtree"

	"github.com/ctremu/hle-kernel/internal/telemetry"
)

// ErrNotEnoughSpace reports that a region cannot satisfy a carve-up
// request.
var ErrNotEnoughSpace = errors.New("memory: not enough space")

// RegionName identifies one of the fixed FCRAM regions.
type RegionName int

const (
	RegionApplication RegionName = iota
	RegionSystem
	RegionBase
)

func (n RegionName) String() string {
	switch n {
	case RegionApplication:
		return "APPLICATION"
	case RegionSystem:
		return "SYSTEM"
	case RegionBase:
		return "BASE"
	}
	return fmt.Sprintf("RegionName(%d)", int(n))
}

// Region is the allocator for one named slice of FCRAM. Offsets are
// absolute FCRAM offsets; the region only hands out space inside
// [base, base+size). Concurrent allocate/free calls are serialized
// here.
type Region struct {
	name RegionName
	base uint32
	size uint32

	mu     sync.Mutex
	used   uint32
	free   augmentedtree.Tree
	nextID uint64
}

// NewRegion builds a region whose whole range starts out free.
func NewRegion(name RegionName, base, size uint32) *Region {
	r := &Region{
		name: name,
		base: base,
		size: size,
		free: augmentedtree.New(1),
	}
	r.free.Add(&freeInterval{lower: base, upper: base + size, id: r.takeID()})
	return r
}

// Carve splits FCRAM into the three standard regions, laid out
// back-to-back from offset 0.
func Carve(appSize, sysSize, baseSize uint32) ([3]*Region, error) {
	var regions [3]*Region
	if uint64(appSize)+uint64(sysSize)+uint64(baseSize) > uint64(FCRAMSize) {
		return regions, fmt.Errorf("%w: region sizes 0x%X+0x%X+0x%X exceed FCRAM (0x%X)",
			ErrNotEnoughSpace, appSize, sysSize, baseSize, FCRAMSize)
	}
	regions[RegionApplication] = NewRegion(RegionApplication, 0, appSize)
	regions[RegionSystem] = NewRegion(RegionSystem, appSize, sysSize)
	regions[RegionBase] = NewRegion(RegionBase, appSize+sysSize, baseSize)
	return regions, nil
}

func (r *Region) Name() RegionName { return r.name }
func (r *Region) Base() uint32     { return r.base }
func (r *Region) Size() uint32     { return r.size }

// Used returns the number of bytes currently allocated from the region.
func (r *Region) Used() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *Region) takeID() uint64 {
	r.nextID++
	return r.nextID
}

// sortedFree returns the free set ordered by offset. Caller holds mu.
func (r *Region) sortedFree() []*freeInterval {
	hits := r.free.Query(&probe{low: int64(r.base), high: int64(r.base+r.size) - 1})
	out := make([]*freeInterval, 0, len(hits))
	for _, iv := range hits {
		out = append(out, iv.(*freeInterval))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lower < out[j].lower })
	return out
}

// LinearAllocate carves size contiguous bytes out of the lowest free
// interval that fits and returns the FCRAM offset of the carved block.
func (r *Region) LinearAllocate(size uint32) (uint32, bool) {
	if size == 0 || size > r.size {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.sortedFree() {
		if f.upper-f.lower < size {
			continue
		}
		offset := f.lower
		r.free.Delete(f)
		if f.upper-f.lower > size {
			r.free.Add(&freeInterval{lower: f.lower + size, upper: f.upper, id: r.takeID()})
		}
		r.used += size
		telemetry.SetRegionUsed(r.name.String(), float64(r.used))
		return offset, true
	}
	return 0, false
}

// HeapAllocate gathers size bytes from the free set, lowest offsets
// first, without requiring contiguity. It returns the taken intervals,
// or nil when the region's total free space is insufficient; a failed
// call does not change the region.
func (r *Region) HeapAllocate(size uint32) []Interval {
	if size == 0 || size > r.size {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := size
	var taken []Interval
	var donors []*freeInterval
	for _, f := range r.sortedFree() {
		n := f.upper - f.lower
		if n > remaining {
			n = remaining
		}
		taken = append(taken, Interval{Lower: f.lower, Upper: f.lower + n})
		donors = append(donors, f)
		remaining -= n
		if remaining == 0 {
			break
		}
	}
	if remaining != 0 {
		return nil
	}
	for i, f := range donors {
		r.free.Delete(f)
		if taken[i].Upper < f.upper {
			r.free.Add(&freeInterval{lower: taken[i].Upper, upper: f.upper, id: r.takeID()})
		}
	}
	r.used += size
	telemetry.SetRegionUsed(r.name.String(), float64(r.used))
	return taken
}

// Free returns [offset, offset+size) to the free set, merging with any
// adjacent free intervals. Each allocated interval must be freed
// exactly once.
func (r *Region) Free(offset, size uint32) {
	if size == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lower, upper := offset, offset+size
	// Pull in neighbours that touch or overlap the released range.
	hits := r.free.Query(&probe{low: int64(lower) - 1, high: int64(upper)})
	for _, iv := range hits {
		f := iv.(*freeInterval)
		if f.lower < lower {
			lower = f.lower
		}
		if f.upper > upper {
			upper = f.upper
		}
		r.free.Delete(f)
	}
	r.free.Add(&freeInterval{lower: lower, upper: upper, id: r.takeID()})
	r.used -= size
	telemetry.SetRegionUsed(r.name.String(), float64(r.used))
}
