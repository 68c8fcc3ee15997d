package runtime

import (
	"encoding/binary"

	"github.com/wippyai/wasmbind"
	"github.com/wippyai/wasmbind/errors"
)

var (
	_ wasmbind.Memory      = (*Memory)(nil)
	_ wasmbind.MemorySizer = (*Memory)(nil)
)

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// Memory is a linear memory. It implements wasmbind.Memory and
// wasmbind.MemorySizer.
type Memory struct {
	view
}

// AsExtern returns the memory as an importable extern.
func (m *Memory) AsExtern() *Extern { return &Extern{view: m.view} }

// Data returns the memory contents. The slice aliases guest memory and is
// invalidated by Grow and by closing the store.
func (m *Memory) Data() ([]byte, error) {
	sp, err := m.use(errors.PhaseCall)
	if err != nil {
		return nil, err
	}
	return m.store.abi().MemoryData(sp, m.ext), nil
}

// Size returns the memory size in bytes, or 0 once the store is closed.
func (m *Memory) Size() uint32 {
	data, err := m.Data()
	if err != nil {
		return 0
	}
	return uint32(len(data))
}

// Grow adds delta pages and returns the previous size in pages.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	sp, err := m.use(errors.PhaseCall)
	if err != nil {
		return 0, err
	}
	prev, errp := m.store.abi().MemoryGrow(sp, m.ext, delta)
	if err := nativeFailure(m.store.abi(), errors.PhaseCall, errp); err != nil {
		return 0, err
	}
	return prev, nil
}

func (m *Memory) span(offset, length uint32) ([]byte, error) {
	data, err := m.Data()
	if err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(length)
	if end > uint64(len(data)) {
		return nil, errors.New(errors.PhaseCall, errors.KindOverflow).
			Detail("access [%d, %d) out of bounds for memory of %d bytes", offset, end, len(data)).
			Build()
	}
	return data[offset:end], nil
}

// Read copies length bytes starting at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	b, err := m.span(offset, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	b, err := m.span(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	b, err := m.span(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	b, err := m.span(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.span(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	b, err := m.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *Memory) WriteU8(offset uint32, v uint8) error {
	b, err := m.span(offset, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (m *Memory) WriteU16(offset uint32, v uint16) error {
	b, err := m.span(offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (m *Memory) WriteU32(offset uint32, v uint32) error {
	b, err := m.span(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (m *Memory) WriteU64(offset uint32, v uint64) error {
	b, err := m.span(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
