package memory

// Physical layout of the emulated FCRAM and the virtual windows that
// matter to shared memory mapping. Sizes follow the default firmware
// memory mode.
const (
	// FCRAMPAddr is the physical address at which FCRAM is visible to
	// the guest. Allocator offsets are relative to the start of FCRAM;
	// adding FCRAMPAddr yields the guest physical address.
	FCRAMPAddr uint32 = 0x20000000
	FCRAMSize  uint32 = 0x08000000

	HeapVAddr            uint32 = 0x08000000
	HeapVAddrEnd         uint32 = 0x0C000000
	SharedMemoryVAddr    uint32 = 0x10000000
	SharedMemoryVAddrEnd uint32 = 0x14000000
	LinearHeapVAddr      uint32 = 0x14000000
	LinearHeapVAddrEnd   uint32 = 0x1C000000

	// UserVAddrEnd bounds the user-mode portion of a process address
	// space.
	UserVAddrEnd uint32 = 0x40000000
)

// Default carve-up of FCRAM into the three named regions.
const (
	DefaultApplicationSize uint32 = 0x04000000
	DefaultSystemSize      uint32 = 0x02C00000
	DefaultBaseSize        uint32 = 0x01400000
)
