package wasmbin

import "bytes"

// Writer accumulates a WebAssembly binary.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) Byte(b byte) { w.buf.WriteByte(b) }

func (w *Writer) Raw(data []byte) { w.buf.Write(data) }

// U32 writes an unsigned LEB128 value.
func (w *Writer) U32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// S64 writes a signed LEB128 value.
func (w *Writer) S64(v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.buf.WriteByte(b)
	}
}

// Name writes a length-prefixed UTF-8 name.
func (w *Writer) Name(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Section writes a section id followed by its size-prefixed payload.
func (w *Writer) Section(id byte, payload []byte) {
	w.Byte(id)
	w.U32(uint32(len(payload)))
	w.Raw(payload)
}
