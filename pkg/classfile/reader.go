package classfile

import (
	"encoding/binary"
	"fmt"
)

// reader decodes big-endian class file data. The first failure is sticky:
// later reads return zero values and err keeps the original position.
type reader struct {
	data []byte
	pos  int
	base int
	err  error
}

func newReader(data []byte, base int) *reader {
	return &reader{data: data, base: base}
}

func (r *reader) offset() int {
	return r.base + r.pos
}

func (r *reader) failf(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = &MalformedClassError{Reason: fmt.Sprintf(format, args...), Offset: r.offset()}
}

// check records err as a malformed class error at the current position.
func (r *reader) check(err error) {
	if err != nil {
		r.failf("%v", err)
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.data)-r.pos < n {
		r.failf("truncated: need %d bytes, have %d", n, len(r.data)-r.pos)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v
}

// sub returns a reader over the next n bytes and advances past them.
func (r *reader) sub(n int) *reader {
	start := r.offset()
	b := r.bytes(n)
	if b == nil && n > 0 {
		return &reader{err: r.err}
	}
	return newReader(b, start)
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}
