package kernel

import (
	"sync/atomic"

	"github.com/ctremu/hle-kernel/pkg/memory"
)

// Process carries the per-process state the shared memory subsystem
// works against: an address space and linear heap accounting.
type Process struct {
	pid  uint32
	name string

	// VM is the process's virtual address space.
	VM *AddressSpace

	// LinearHeapUsed counts linear heap bytes attributed to this
	// process, shared memory blocks included. Accounting only.
	LinearHeapUsed atomic.Uint32

	linearHeapBase uint32
}

// PID returns the process id.
func (p *Process) PID() uint32 { return p.pid }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// LinearHeapAreaAddress returns the virtual base at which this process
// aliases the physical linear heap.
func (p *Process) LinearHeapAreaAddress() uint32 {
	if p.linearHeapBase == 0 {
		return memory.LinearHeapVAddr
	}
	return p.linearHeapBase
}
