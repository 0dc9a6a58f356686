// Package kernel implements the shared-memory kernel object of the
// emulated OS: blocks of physically-backed memory created fresh from a
// region allocator or adopted from an owner's address space, then
// mapped into processes under negotiated permission grants.
package kernel

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ctremu/hle-kernel/internal/fcram"
	"github.com/ctremu/hle-kernel/internal/telemetry"
	"github.com/ctremu/hle-kernel/pkg/memory"
)

// Config carries the knobs for a kernel instance. The zero value gives
// the default firmware carve-up, a real FCRAM arena and noop
// instrumentation.
type Config struct {
	// Meter and Tracer instrument Map/Unmap; nil means noop.
	Meter  metric.Meter
	Tracer trace.Tracer

	// Region sizes override the default carve-up when all three are
	// nonzero.
	ApplicationSize uint32
	SystemSize      uint32
	BaseSize        uint32

	// Arena tunes how the host backing for FCRAM is obtained.
	Arena fcram.Options
}

// KernelSystem owns the emulated physical memory and every kernel
// object created against it.
type KernelSystem struct {
	arena   *fcram.Arena
	regions [3]*memory.Region

	objects cmap.ConcurrentMap[string, *SharedMemory]

	nextObjectID atomic.Uint32
	nextPID      atomic.Uint32

	tracer   trace.Tracer
	mapCount metric.Int64Counter
}

// New builds a kernel system with its own FCRAM arena and region
// allocators.
func New(cfg Config) (*KernelSystem, error) {
	app, sys, base := cfg.ApplicationSize, cfg.SystemSize, cfg.BaseSize
	if app == 0 && sys == 0 && base == 0 {
		app, sys, base = memory.DefaultApplicationSize, memory.DefaultSystemSize, memory.DefaultBaseSize
	}
	regions, err := memory.Carve(app, sys, base)
	if err != nil {
		return nil, err
	}
	arena, err := fcram.New(memory.FCRAMSize, cfg.Arena)
	if err != nil {
		return nil, err
	}

	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("hle-kernel")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("hle-kernel")
	}
	mapCount, err := meter.Int64Counter("kernel.shared_memory.maps")
	if err != nil {
		return nil, err
	}

	return &KernelSystem{
		arena:    arena,
		regions:  regions,
		objects:  cmap.New[*SharedMemory](),
		tracer:   tracer,
		mapCount: mapCount,
	}, nil
}

// GetMemoryRegion returns the allocator for one named FCRAM region.
func (k *KernelSystem) GetMemoryRegion(name memory.RegionName) *memory.Region {
	return k.regions[name]
}

// Close releases the host backing arena. No object created by this
// kernel may be used afterwards.
func (k *KernelSystem) Close() error { return k.arena.Close() }

// NewProcess builds a process with an empty address space.
func (k *KernelSystem) NewProcess(name string) *Process {
	return &Process{
		pid:            k.nextPID.Add(1),
		name:           name,
		VM:             NewAddressSpace(),
		linearHeapBase: memory.LinearHeapVAddr,
	}
}

func (k *KernelSystem) newSharedMemory(owner *Process, size uint32, permissions, otherPermissions MemoryPermission, name string) *SharedMemory {
	s := &SharedMemory{
		kernel:           k,
		size:             size,
		owner:            owner,
		permissions:      permissions,
		otherPermissions: otherPermissions,
	}
	s.object.id = k.nextObjectID.Add(1)
	s.object.name = name
	s.object.refs.Store(1)
	return s
}

func objectKey(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

func (k *KernelSystem) register(s *SharedMemory) {
	k.objects.Set(objectKey(s.id), s)
	internalLogger.debugf("created %s", dumpSharedMemory(s))
}

func (k *KernelSystem) unregister(id uint32) {
	k.objects.Remove(objectKey(id))
}

// SharedMemory looks up a live shared memory object by id.
func (k *KernelSystem) SharedMemory(id uint32) (*SharedMemory, bool) {
	return k.objects.Get(objectKey(id))
}

// SharedMemoryCount returns the number of live shared memory objects.
func (k *KernelSystem) SharedMemoryCount() int { return k.objects.Count() }

// CreateSharedMemory builds a shared memory block. An address of 0
// allocates size bytes fresh from the named region's linear allocator;
// a nonzero address adopts memory already committed in owner's address
// space across exactly size bytes. Running out of physical space, or
// adopting memory that is not committed backing memory, is a
// configuration/contract violation and panics.
func (k *KernelSystem) CreateSharedMemory(owner *Process, size uint32, permissions, otherPermissions MemoryPermission, address uint32, region memory.RegionName, name string) *SharedMemory {
	s := k.newSharedMemory(owner, size, permissions, otherPermissions, name)

	if address == 0 {
		// Allocate a block from the region's linear heap ourselves.
		r := k.GetMemoryRegion(region)
		offset, ok := r.LinearAllocate(size)
		if !ok {
			panic(fmt.Sprintf("kernel: not enough space in region %s to allocate shared memory %q (0x%X bytes)",
				region, name, size))
		}
		s.backingBlocks = [][]byte{k.arena.Slice(offset, size)}
		s.holdingMemory = []memory.Interval{{Lower: offset, Upper: offset + size}}
		s.holdingRegion = r
		s.linearHeapPhysAddress = memory.FCRAMPAddr + offset

		if owner != nil {
			owner.LinearHeapUsed.Add(size)
		}
		telemetry.ObserveCreation("fresh")
	} else {
		// The memory is already available and mapped in the owner.
		// Walk its areas and record one backing run per area crossed.
		target := address
		for target != address+size {
			area := owner.VM.FindArea(target)
			if area == nil || area.Type != AreaBackingMemory {
				panic(fmt.Sprintf("kernel: shared memory %q adopts memory at 0x%08X that is not committed backing memory",
					name, target))
			}
			end := min(address+size, area.End())
			runSize := end - target
			s.backingBlocks = append(s.backingBlocks, area.Backing[target-area.Base:][:runSize])
			target += runSize
		}
		telemetry.ObserveCreation("adopted")
	}

	s.baseAddress = address
	k.register(s)
	return s
}

// CreateSharedMemoryForApplet builds an owner-less block heap-allocated
// from the SYSTEM region, placed at the given offset into the reserved
// heap window. The backing may span several disjoint physical
// intervals, all owned by the block.
func (k *KernelSystem) CreateSharedMemoryForApplet(offset, size uint32, permissions, otherPermissions MemoryPermission, name string) *SharedMemory {
	s := k.newSharedMemory(nil, size, permissions, otherPermissions, name)

	r := k.GetMemoryRegion(memory.RegionSystem)
	intervals := r.HeapAllocate(size)
	if len(intervals) == 0 {
		panic(fmt.Sprintf("kernel: not enough space in region %s to allocate shared memory %q (0x%X bytes)",
			memory.RegionSystem, name, size))
	}
	s.holdingMemory = intervals
	s.holdingRegion = r
	for _, iv := range intervals {
		s.backingBlocks = append(s.backingBlocks, k.arena.Slice(iv.Lower, iv.Size()))
	}
	s.baseAddress = memory.HeapVAddr + offset

	telemetry.ObserveCreation("applet")
	k.register(s)
	return s
}

func (k *KernelSystem) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return k.tracer.Start(ctx, name)
}

func (k *KernelSystem) endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.String("result", mapResultLabel(err)))
	span.End()
}

func (k *KernelSystem) countMap(ctx context.Context, err error) {
	k.mapCount.Add(ctx, 1, metric.WithAttributes(attribute.String("result", mapResultLabel(err))))
}
