package interp

import (
	"encoding/binary"

	"fortio.org/safecast"

	"unstack/internal/lowir"
)

// memory is a little-endian linear memory.
type memory struct {
	data []byte
}

func (m *memory) span(acc lowir.MemAccess, addr uint32) ([]byte, error) {
	ea := uint64(addr) + uint64(acc.Offset)
	w := uint64(acc.Width())
	end, err := safecast.Conv[int](ea + w)
	if err != nil || end > len(m.data) {
		return nil, trapf(TrapOutOfBounds, "memory access at %d+%d out of bounds (size %d)", ea, w, len(m.data))
	}
	return m.data[end-int(w) : end], nil
}

func (m *memory) load(acc lowir.MemAccess, addr uint32) (lowir.Value, error) {
	b, err := m.span(acc, addr)
	if err != nil {
		return lowir.Value{}, err
	}
	var raw uint64
	switch len(b) {
	case 1:
		raw = uint64(b[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(b))
	default:
		raw = binary.LittleEndian.Uint64(b)
	}
	if n := uint(len(b)) * 8; acc.Signed && acc.Type.IsInt() && n < 64 {
		shift := 64 - n
		raw = uint64(int64(raw<<shift) >> shift)
	}
	return lowir.Value{Type: acc.Type, Bits: raw & mask(acc.Type)}, nil
}

func (m *memory) store(acc lowir.MemAccess, addr uint32, v lowir.Value) error {
	b, err := m.span(acc, addr)
	if err != nil {
		return err
	}
	switch len(b) {
	case 1:
		b[0] = byte(v.Bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v.Bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v.Bits))
	default:
		binary.LittleEndian.PutUint64(b, v.Bits)
	}
	return nil
}
