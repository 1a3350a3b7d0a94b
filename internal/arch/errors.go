package arch

// MapError is a mapping failure. Always returned, never panicked.
type MapError uint8

const (
	// MapExists indicates the virtual address is already mapped.
	MapExists MapError = iota + 1
	// MapOutOfMemory indicates page-table or frame allocation failed.
	MapOutOfMemory
	// MapVirtNotAligned indicates the virtual address is not page-aligned.
	MapVirtNotAligned
	// MapVirtOutOfRange indicates the virtual address is outside the
	// segment's range.
	MapVirtOutOfRange
)

// Error implements error.
func (e MapError) Error() string {
	switch e {
	case MapExists:
		return "virtual address already mapped"
	case MapOutOfMemory:
		return "out of memory"
	case MapVirtNotAligned:
		return "virtual address not page-aligned"
	case MapVirtOutOfRange:
		return "virtual address out of segment range"
	default:
		return "unknown map error"
	}
}

// UnmapError is an unmapping failure.
type UnmapError uint8

const (
	// UnmapNotMapped indicates no mapping exists at the virtual address.
	UnmapNotMapped UnmapError = iota + 1
	// UnmapVirtNotAligned indicates the virtual address is not page-aligned.
	UnmapVirtNotAligned
	// UnmapVirtOutOfRange indicates the virtual address is outside the
	// segment's range.
	UnmapVirtOutOfRange
)

// Error implements error.
func (e UnmapError) Error() string {
	switch e {
	case UnmapNotMapped:
		return "virtual address not mapped"
	case UnmapVirtNotAligned:
		return "virtual address not page-aligned"
	case UnmapVirtOutOfRange:
		return "virtual address out of segment range"
	default:
		return "unknown unmap error"
	}
}
