package kernel

import (
	"context"
	"fmt"

	"github.com/ctremu/hle-kernel/internal/telemetry"
	"github.com/ctremu/hle-kernel/pkg/memory"
)

// SharedMemory is a permission-gated block of physical memory that can
// be mapped into one or more process address spaces. Its backing runs
// and held intervals are fixed at creation; the last Release frees the
// held intervals exactly once.
type SharedMemory struct {
	object
	kernel *KernelSystem

	size uint32

	// owner is nil only for applet-created blocks; every permission
	// check then runs against otherPermissions.
	owner *Process

	permissions      MemoryPermission
	otherPermissions MemoryPermission

	// baseAddress is 0 for fresh-allocated blocks and the owner-side
	// virtual address for adopted ones.
	baseAddress uint32

	// backingBlocks is the ordered run list; run lengths always sum to
	// size. Each run is a non-owning window into host storage.
	backingBlocks [][]byte

	// holdingMemory is the set of physical intervals this block owns
	// exclusively, released back into holdingRegion on the last
	// Release. Empty for adopted blocks.
	holdingMemory []memory.Interval
	holdingRegion *memory.Region

	// linearHeapPhysAddress is set on the fresh-linear path only; it is
	// the physical address re-based into a mapper's linear heap alias
	// when no explicit target address is given.
	linearHeapPhysAddress uint32
}

// Size returns the block size in bytes.
func (s *SharedMemory) Size() uint32 { return s.size }

// Owner returns the owning process, nil for applet blocks.
func (s *SharedMemory) Owner() *Process { return s.owner }

// BaseAddress returns 0 for fresh-allocated blocks and the owner-side
// virtual address for adopted ones.
func (s *SharedMemory) BaseAddress() uint32 { return s.baseAddress }

// Map maps this block into target's address space. An address of 0 on
// a fresh-allocated block resolves to the target's linear heap alias
// of the block's physical location. The validation order below is an
// observable contract: a given bad input must keep reporting the same
// error.
func (s *SharedMemory) Map(ctx context.Context, target *Process, address uint32, permissions, otherPermissions MemoryPermission) (err error) {
	ctx, span := s.kernel.startSpan(ctx, "SharedMemory.Map")
	defer func() {
		telemetry.ObserveMap(mapResultLabel(err))
		s.kernel.countMap(ctx, err)
		s.kernel.endSpan(span, err)
	}()

	ownOtherPermissions := s.otherPermissions
	if target == s.owner {
		ownOtherPermissions = s.permissions
	}

	// Automatically allocated blocks only map with
	// other_permissions=DontCare.
	if s.baseAddress == 0 && otherPermissions != PermDontCare {
		return ErrInvalidCombination
	}

	// The request must stay within the applicable creator grant.
	if uint32(permissions)&^uint32(ownOtherPermissions) != 0 {
		internalLogger.errorf("cannot map id=%d, address=0x%08X name=%s, permissions don't match",
			s.id, address, s.name)
		return ErrWrongPermission
	}

	// Adopted blocks need a concrete other_permissions.
	if s.baseAddress != 0 && otherPermissions == PermDontCare {
		internalLogger.errorf("cannot map id=%d, address=0x%08X name=%s, permissions don't match",
			s.id, address, s.name)
		return ErrInvalidCombination
	}

	// The offered other_permissions must cover the creator's own grant.
	if otherPermissions != PermDontCare && uint32(s.permissions)&^uint32(otherPermissions) != 0 {
		internalLogger.errorf("cannot map id=%d, address=0x%08X name=%s, permissions don't match",
			s.id, address, s.name)
		return ErrWrongPermission
	}

	if address != 0 {
		if address < memory.HeapVAddr || address+s.size >= memory.SharedMemoryVAddrEnd {
			internalLogger.errorf("cannot map id=%d, address=0x%08X name=%s, invalid address",
				s.id, address, s.name)
			return ErrInvalidAddress
		}
	}

	targetAddress := address
	if s.baseAddress == 0 && targetAddress == 0 {
		// Re-base the physical linear heap offset into the mapping
		// process's own alias window.
		targetAddress = s.linearHeapPhysAddress - memory.FCRAMPAddr + target.LinearHeapAreaAddress()
	}

	area := target.VM.FindArea(targetAddress)
	if area == nil || area.Type != AreaFree || area.End() < targetAddress+s.size {
		internalLogger.errorf("trying to map id=%d name=%s to already allocated memory at 0x%08X",
			s.id, s.name, targetAddress)
		return ErrInvalidAddressState
	}

	// Commit. Placement was validated above, so a failure past this
	// point is a kernel invariant violation, not a guest-reachable
	// state.
	runTarget := targetAddress
	for _, block := range s.backingBlocks {
		mapped, mapErr := target.VM.MapBackingMemory(runTarget, block, uint32(len(block)), StateShared)
		if mapErr != nil {
			panic(fmt.Sprintf("kernel: committing %s at 0x%08X failed: %v", dumpSharedMemory(s), runTarget, mapErr))
		}
		target.VM.Reprotect(mapped, convertPermissions(permissions))
		runTarget += uint32(len(block))
	}
	return nil
}

// Unmap removes the full block mapped at address from target as one
// ranged operation. Whether address actually came from a prior Map of
// this block is an unvalidated caller precondition.
func (s *SharedMemory) Unmap(ctx context.Context, target *Process, address uint32) error {
	_, span := s.kernel.startSpan(ctx, "SharedMemory.Unmap")
	defer span.End()
	return target.VM.UnmapRange(address, s.size)
}

// GetPointer returns a host window into the block at offset. The
// window spans the first backing run only; callers must not use it on
// discontiguous blocks.
func (s *SharedMemory) GetPointer(offset uint32) []byte {
	if len(s.backingBlocks) != 1 {
		internalLogger.warnf("unsafe GetPointer on discontinuous shared memory id=%d name=%s",
			s.id, s.name)
	}
	return s.backingBlocks[0][offset:]
}

// Retain adds a reference on behalf of a new holder.
func (s *SharedMemory) Retain() { s.retain() }

// Release drops one reference. The last release frees every held
// physical interval back into its region, exactly once; adopted
// backing is never released here.
func (s *SharedMemory) Release() {
	if !s.release() {
		return
	}
	for _, iv := range s.holdingMemory {
		s.holdingRegion.Free(iv.Lower, iv.Size())
	}
	s.kernel.unregister(s.id)
}
