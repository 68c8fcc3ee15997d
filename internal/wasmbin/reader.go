package wasmbin

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds its bit width.
var ErrOverflow = errors.New("leb128: overflow")

// ErrShort is returned when the input ends inside a value.
var ErrShort = errors.New("unexpected end of input")

// reader walks a byte slice with position tracking.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) done() bool { return r.pos >= len(r.b) }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, r.wrap(ErrShort)
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, r.wrap(ErrShort)
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		c, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, r.wrap(ErrOverflow)
		}
	}
}

func (r *reader) u64() (uint64, error) {
	var result uint64
	var shift uint
	for {
		c, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 70 {
			return 0, r.wrap(ErrOverflow)
		}
	}
}

// skipLEB skips a signed or unsigned LEB128 value of at most maxBytes.
func (r *reader) skipLEB(maxBytes int) error {
	for i := 0; i < maxBytes; i++ {
		c, err := r.byte()
		if err != nil {
			return err
		}
		if c&0x80 == 0 {
			return nil
		}
	}
	return r.wrap(ErrOverflow)
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	data, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrap(errors.New("invalid UTF-8 in name"))
	}
	return string(data), nil
}

func (r *reader) wrap(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}
