package iface

// Key packs up to eight ASCII characters into a uint64, big-endian, zero
// padded on the right. Keys read back as their mnemonic in error messages
// and never collide with the kernel-reserved interface bit, since ASCII
// leaves the top bit of the leading byte clear.
func Key(s string) uint64 {
	if len(s) > 8 {
		panic("iface: key longer than 8 bytes: " + s)
	}
	var k uint64
	for i := 0; i < 8; i++ {
		k <<= 8
		if i < len(s) {
			c := s[i]
			if c >= 0x80 {
				panic("iface: non-ASCII key byte in " + s)
			}
			k |= uint64(c)
		}
	}
	return k
}

// KeyString unpacks a key back into its mnemonic form for logs.
func KeyString(k uint64) string {
	buf := make([]byte, 0, 8)
	for i := 7; i >= 0; i-- {
		c := byte(k >> (uint(i) * 8))
		if c == 0 {
			continue
		}
		if c < 0x20 || c >= 0x7F {
			c = '.'
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// KernelBit marks an interface ID as a kernel built-in. IDs without it
// resolve through the identity registry to ring-scoped interfaces.
const KernelBit uint64 = 1 << 63

// Built-in interface IDs.
var (
	// BuiltinThreadControl reads and transitions thread run states.
	BuiltinThreadControl = KernelBit | Key("thrd_v0")
	// BuiltinMemToken queries tokens and reserves their virtual placement.
	BuiltinMemToken = KernelBit | Key("token_v0")
	// BuiltinTokenAlloc mints new memory tokens.
	BuiltinTokenAlloc = KernelBit | Key("tkalloc0")
	// BuiltinDebugOut accumulates bytes into the kernel log.
	BuiltinDebugOut = KernelBit | Key("dbgout_0")
)

// Keys shared across interfaces.
var (
	// KeyID reads an entity's resource ID.
	KeyID = Key("id")
	// KeyType reads an interface or entity type code.
	KeyType = Key("type")
)

// Thread-control keys.
var (
	// KeyStatus reads or writes a thread's run state.
	KeyStatus = Key("status")
)

// Memory-token keys.
var (
	// KeyPageSize reads a token's page size in bytes.
	KeyPageSize = Key("pagesize")
	// KeyPages reads a token's page count, or requests that many pages from
	// the allocator interface.
	KeyPages = Key("pages")
	// KeySize reads a token's total byte size.
	KeySize = Key("size")
	// KeyCommitted reads how many of a token's pages are backed.
	KeyCommitted = Key("commit")
	// KeyBase writes the virtual base address a token is reserved at.
	KeyBase = Key("base")
	// KeyForget releases the calling instance's ownership of a token.
	KeyForget = Key("forget")
)

// Debug-output keys.
var (
	// KeyWrite appends one character to the caller's debug line.
	KeyWrite = Key("write")
)
