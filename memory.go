package wasmbind

// Memory is byte-level access to a linear memory. Multi-byte values are
// little-endian. Out-of-range accesses return an error and never panic.
type Memory interface {
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error

	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)

	WriteU8(offset uint32, v uint8) error
	WriteU16(offset uint32, v uint16) error
	WriteU32(offset uint32, v uint32) error
	WriteU64(offset uint32, v uint64) error
}

// MemorySizer reports the current size of a memory in bytes. It returns 0
// once the owning store is closed.
type MemorySizer interface {
	Size() uint32
}

// Allocator hands out guest memory. Free must receive the size and
// alignment given to Alloc.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
