package kernel

// MemoryPermission is a grant attached to a shared memory block at
// creation time or requested by a mapper.
type MemoryPermission uint32

const (
	PermNone             MemoryPermission = 0
	PermRead             MemoryPermission = 1
	PermWrite            MemoryPermission = 2
	PermReadWrite        MemoryPermission = 3
	PermExecute          MemoryPermission = 4
	PermReadExecute      MemoryPermission = 5
	PermWriteExecute     MemoryPermission = 6
	PermReadWriteExecute MemoryPermission = 7

	// PermDontCare means no specific grant was negotiated. It is only
	// legal in particular combinations with the fresh/adopted split and
	// never converts to an area protection.
	PermDontCare MemoryPermission = 0x10000000
)

func (p MemoryPermission) String() string {
	switch p {
	case PermNone:
		return "None"
	case PermRead:
		return "R"
	case PermWrite:
		return "W"
	case PermReadWrite:
		return "RW"
	case PermExecute:
		return "X"
	case PermReadExecute:
		return "RX"
	case PermWriteExecute:
		return "WX"
	case PermReadWriteExecute:
		return "RWX"
	case PermDontCare:
		return "DontCare"
	}
	return "Invalid"
}

// AreaPermission is the protection actually applied to a mapped area.
type AreaPermission uint32

const (
	AreaNone             AreaPermission = 0
	AreaRead             AreaPermission = 1
	AreaWrite            AreaPermission = 2
	AreaReadWrite        AreaPermission = 3
	AreaExecute          AreaPermission = 4
	AreaReadExecute      AreaPermission = 5
	AreaReadWriteExecute AreaPermission = 7
)

// convertPermissions masks a grant down to its read/write/execute
// bits. DontCare must never reach this for a live mapping target.
func convertPermissions(p MemoryPermission) AreaPermission {
	return AreaPermission(uint32(p) & uint32(PermReadWriteExecute))
}
