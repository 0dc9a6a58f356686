package kernel

import (
	"fmt"
	"sync"

	"github.com/Workiva/go-datastructures/augmentedtree"

	"github.com/ctremu/hle-kernel/pkg/memory"
)

// AreaType classifies an address-space area.
type AreaType int

const (
	AreaFree AreaType = iota
	AreaBackingMemory
)

// MemoryState tags mapped areas with the guest-visible memory state.
type MemoryState int

const (
	StateFree MemoryState = iota
	StatePrivate
	StateShared
	StateContinuous
)

// Area is one entry in an address-space partition.
type Area struct {
	Base  uint32
	Size  uint32
	Type  AreaType
	State MemoryState
	Perms AreaPermission

	// Backing is the host window behind the area, nil when free.
	Backing []byte

	id uint64
}

// End returns the first address past the area.
func (a *Area) End() uint32 { return a.Base + a.Size }

func (a *Area) LowAtDimension(uint64) int64  { return int64(a.Base) }
func (a *Area) HighAtDimension(uint64) int64 { return int64(a.Base) + int64(a.Size) - 1 }

func (a *Area) OverlapsAtDimension(iv augmentedtree.Interval, d uint64) bool {
	return a.LowAtDimension(d) <= iv.HighAtDimension(d) &&
		a.HighAtDimension(d) >= iv.LowAtDimension(d)
}

func (a *Area) ID() uint64 { return a.id }

// vaProbe is a query-only interval for address lookups.
type vaProbe struct {
	low  int64
	high int64
}

func (p *vaProbe) LowAtDimension(uint64) int64  { return p.low }
func (p *vaProbe) HighAtDimension(uint64) int64 { return p.high }

func (p *vaProbe) OverlapsAtDimension(iv augmentedtree.Interval, d uint64) bool {
	return p.low <= iv.HighAtDimension(d) && p.high >= iv.LowAtDimension(d)
}

func (p *vaProbe) ID() uint64 { return 0 }

// AddressSpace is a per-process virtual address space: a partition of
// [0, UserVAddrEnd) into non-overlapping areas. Structural mutations
// (map, reprotect, unmap) are serialized here; callers above hold no
// locks of their own.
type AddressSpace struct {
	mu     sync.Mutex
	areas  augmentedtree.Tree
	nextID uint64
}

// NewAddressSpace builds an address space with the whole user range
// free.
func NewAddressSpace() *AddressSpace {
	as := &AddressSpace{areas: augmentedtree.New(1)}
	as.insert(&Area{Base: 0, Size: memory.UserVAddrEnd, Type: AreaFree, State: StateFree})
	return as
}

// insert assigns a fresh tree id and adds the area. Caller holds mu
// (or, during construction, has exclusive access).
func (as *AddressSpace) insert(a *Area) *Area {
	as.nextID++
	a.id = as.nextID
	as.areas.Add(a)
	return a
}

func (as *AddressSpace) findArea(addr uint32) *Area {
	hits := as.areas.Query(&vaProbe{low: int64(addr), high: int64(addr)})
	for _, iv := range hits {
		return iv.(*Area)
	}
	return nil
}

// FindArea returns the area containing addr, or nil when addr lies
// outside the user range. The partition invariant guarantees at most
// one match.
func (as *AddressSpace) FindArea(addr uint32) *Area {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.findArea(addr)
}

// MapBackingMemory commits len(backing) bytes of host memory at
// target, carving the containing free area. The caller validates
// placement beforehand; a non-free or undersized destination is an
// error here, not a guest-visible result.
func (as *AddressSpace) MapBackingMemory(target uint32, backing []byte, size uint32, state MemoryState) (*Area, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	area := as.findArea(target)
	if area == nil || area.Type != AreaFree {
		return nil, fmt.Errorf("map 0x%08X: destination is not free", target)
	}
	if area.End() < target+size {
		return nil, fmt.Errorf("map 0x%08X: free area ends at 0x%08X, need 0x%X bytes", target, area.End(), size)
	}

	as.areas.Delete(area)
	if target > area.Base {
		as.insert(&Area{Base: area.Base, Size: target - area.Base, Type: AreaFree, State: StateFree})
	}
	if area.End() > target+size {
		as.insert(&Area{Base: target + size, Size: area.End() - (target + size), Type: AreaFree, State: StateFree})
	}
	return as.insert(&Area{
		Base:    target,
		Size:    size,
		Type:    AreaBackingMemory,
		State:   state,
		Backing: backing[:size],
	}), nil
}

// Reprotect applies protection bits to a mapped area.
func (as *AddressSpace) Reprotect(area *Area, perms AreaPermission) {
	as.mu.Lock()
	defer as.mu.Unlock()
	area.Perms = perms
}

// splitAt divides an area at addr, leaving both halves in the tree,
// and returns them. Caller holds mu; area must contain addr strictly
// inside itself.
func (as *AddressSpace) splitAt(area *Area, addr uint32) (left, right *Area) {
	as.areas.Delete(area)
	left = &Area{Base: area.Base, Size: addr - area.Base, Type: area.Type, State: area.State, Perms: area.Perms}
	right = &Area{Base: addr, Size: area.End() - addr, Type: area.Type, State: area.State, Perms: area.Perms}
	if area.Backing != nil {
		left.Backing = area.Backing[:left.Size]
		right.Backing = area.Backing[left.Size:]
	}
	as.insert(left)
	as.insert(right)
	return left, right
}

// UnmapRange removes [addr, addr+size) in one ranged operation,
// returning the covered areas to the free state and coalescing with
// free neighbours.
func (as *AddressSpace) UnmapRange(addr, size uint32) error {
	if size == 0 {
		return fmt.Errorf("unmap 0x%08X: empty range", addr)
	}
	end := addr + size
	if end < addr || end > memory.UserVAddrEnd {
		return fmt.Errorf("unmap 0x%08X: range of 0x%X bytes leaves the user space", addr, size)
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	cur := addr
	for cur < end {
		area := as.findArea(cur)
		if area == nil {
			return fmt.Errorf("unmap 0x%08X: no area at 0x%08X", addr, cur)
		}
		if area.Base < cur {
			_, area = as.splitAt(area, cur)
		}
		if area.End() > end {
			area, _ = as.splitAt(area, end)
		}
		area.Type = AreaFree
		area.State = StateFree
		area.Perms = AreaNone
		area.Backing = nil
		cur = area.End()
	}
	as.coalesceFree(addr, end)
	return nil
}

// coalesceFree merges the free areas covering [lower, upper) with any
// free neighbours into a single free area. Caller holds mu; the range
// itself is known to be free.
func (as *AddressSpace) coalesceFree(lower, upper uint32) {
	lo, hi := lower, upper
	for lo > 0 {
		a := as.findArea(lo - 1)
		if a == nil || a.Type != AreaFree {
			break
		}
		lo = a.Base
	}
	for hi < memory.UserVAddrEnd {
		a := as.findArea(hi)
		if a == nil || a.Type != AreaFree {
			break
		}
		hi = a.End()
	}

	var merged []*Area
	cur := lo
	for cur < hi {
		a := as.findArea(cur)
		merged = append(merged, a)
		cur = a.End()
	}
	if len(merged) <= 1 {
		return
	}
	for _, a := range merged {
		as.areas.Delete(a)
	}
	as.insert(&Area{Base: lo, Size: hi - lo, Type: AreaFree, State: StateFree})
}
