package sidx

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedIndex is the root of every segment index decoding failure.
	ErrMalformedIndex = errors.New("malformed segment index")
	// ErrBufferUnderrun reports a read past the end of the decoded buffer.
	ErrBufferUnderrun = fmt.Errorf("%w: buffer underrun", ErrMalformedIndex)
	// ErrUnsupportedReference reports a reference pointing at another sidx box.
	ErrUnsupportedReference = fmt.Errorf("%w: reference to nested sidx box", ErrMalformedIndex)
)

// Reader is a bounded big-endian cursor over a byte slice.
// A failed read leaves the position unchanged.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// next reads width bytes as a big-endian unsigned integer.
func (r *Reader) next(width int) (uint64, error) {
	if r.Remaining() < width {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBufferUnderrun, width, r.pos, r.Remaining())
	}
	var out uint64
	for _, b := range r.buf[r.pos : r.pos+width] {
		out = out<<8 | uint64(b)
	}
	r.pos += width
	return out, nil
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	v, err := r.next(1)
	return uint8(v), err
}

// ReadU16 reads a big-endian 16-bit value.
func (r *Reader) ReadU16() (uint16, error) {
	v, err := r.next(2)
	return uint16(v), err
}

// ReadU32 reads a big-endian 32-bit value.
func (r *Reader) ReadU32() (uint32, error) {
	v, err := r.next(4)
	return uint32(v), err
}

// ReadU64 reads a big-endian 64-bit value.
func (r *Reader) ReadU64() (uint64, error) {
	return r.next(8)
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Remaining() < n {
		return fmt.Errorf("%w: cannot skip %d bytes at offset %d", ErrBufferUnderrun, n, r.pos)
	}
	r.pos += n
	return nil
}
