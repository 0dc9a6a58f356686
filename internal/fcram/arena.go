// Package fcram provides the host memory arena standing in for the
// emulated console's physical FCRAM. Backing runs handed to guest
// address spaces are windows into this arena.
package fcram

import (
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// ErrHostMemoryLow reports that the host cannot back the requested
// arena.
var ErrHostMemoryLow = errors.New("fcram: host does not have enough available memory")

// Options tune how the arena obtains its host backing.
type Options struct {
	// Name labels the memfd when one backs the arena.
	Name string
	// DisableMmap forces the plain heap-slice fallback.
	DisableMmap bool
	// SkipHostCheck skips the host free-memory probe.
	SkipHostCheck bool
}

// Arena is one contiguous block of host memory holding the emulated
// physical address space. It outlives every object whose backing runs
// point into it.
type Arena struct {
	data   []byte
	memFd  int
	mapped bool
}

// New builds an arena of the given size. On Linux the backing comes
// from an anonymous memfd mapping, falling back to a heap slice when
// the host refuses the mapping.
func New(size uint32, opts Options) (*Arena, error) {
	if !opts.SkipHostCheck {
		if err := checkHostCapacity(uint64(size)); err != nil {
			return nil, err
		}
	}
	if !opts.DisableMmap {
		if a, err := mapArena(int(size), opts.Name); err == nil {
			return a, nil
		}
	}
	return &Arena{data: make([]byte, size)}, nil
}

// checkHostCapacity refuses to build an arena bigger than what the
// host reports as available.
func checkHostCapacity(size uint64) error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		// Can't tell; let the mapping attempt decide.
		return nil
	}
	if vm.Available < size {
		return fmt.Errorf("%w: need 0x%X bytes, 0x%X available", ErrHostMemoryLow, size, vm.Available)
	}
	return nil
}

// Slice returns the window [offset, offset+size) of the arena. The
// window is non-owning; closing the arena invalidates it.
func (a *Arena) Slice(offset, size uint32) []byte {
	return a.data[offset : offset+size : offset+size]
}

// Size returns the arena size in bytes.
func (a *Arena) Size() uint32 { return uint32(len(a.data)) }

// Close releases the host backing. Windows handed out by Slice must
// not be used afterwards.
func (a *Arena) Close() error { return a.unmap() }
