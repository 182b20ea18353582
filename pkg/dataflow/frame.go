// Package dataflow runs abstract interpretation of JVM bytecode over a
// client-supplied value lattice.
//
// A Frame models the operand stack and local variables of one program point.
// The Machine applies the effect of each instruction to a frame, asking the
// client Analysis for the values it cares about and pushing Unknown for the
// rest. Solve drives the machine over a method's control-flow graph until the
// block entry states reach a fixed point.
package dataflow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Domain is the abstract value lattice of an analysis. Join must be
// commutative, associative and idempotent, and the lattice must have finite
// height.
type Domain[V any] interface {
	// Unknown is the top element.
	Unknown() V
	Join(a, b V) V
	Equal(a, b V) bool
	// Hash writes a canonical encoding of v. Equal values must write the
	// same bytes.
	Hash(d *xxhash.Digest, v V)
}

type slot[V any] struct {
	v    V
	wide bool
}

// Frame is the abstract state at one program point: an operand stack whose
// entries are values of category 1 or 2, and the tracked local slots.
//
// Pushing onto a full stack drops the bottom entry; popping an empty stack
// yields Unknown. Locals past the tracked count read as Unknown and ignore
// stores. Both cases are recorded so the solver can report a soft budget
// overrun.
type Frame[V any] struct {
	dom      Domain[V]
	stack    []slot[V]
	locals   []slot[V]
	maxStack int

	overflowed bool
	untracked  bool
}

// NewFrame returns a frame with an empty stack and every tracked local set to
// Unknown.
func NewFrame[V any](dom Domain[V], maxStack, maxLocals int) *Frame[V] {
	f := &Frame[V]{
		dom:      dom,
		maxStack: maxStack,
		locals:   make([]slot[V], maxLocals),
	}
	for i := range f.locals {
		f.locals[i].v = dom.Unknown()
	}
	return f
}

// Clone returns an independent copy of f.
func (f *Frame[V]) Clone() *Frame[V] {
	c := *f
	c.stack = append([]slot[V](nil), f.stack...)
	c.locals = append([]slot[V](nil), f.locals...)
	return &c
}

// Depth returns the number of stack entries. A long or double is one entry.
func (f *Frame[V]) Depth() int {
	return len(f.stack)
}

// Locals returns the number of tracked local slots.
func (f *Frame[V]) Locals() int {
	return len(f.locals)
}

// Push pushes a category 1 value.
func (f *Frame[V]) Push(v V) {
	f.push(slot[V]{v: v})
}

// PushWide pushes a long or double.
func (f *Frame[V]) PushWide(v V) {
	f.push(slot[V]{v: v, wide: true})
}

func (f *Frame[V]) push(s slot[V]) {
	if f.maxStack > 0 && len(f.stack) >= f.maxStack {
		f.stack = append(f.stack[:0], f.stack[1:]...)
		f.overflowed = true
	}
	f.stack = append(f.stack, s)
}

// Pop removes and returns the top entry.
func (f *Frame[V]) Pop() V {
	return f.pop().v
}

func (f *Frame[V]) pop() slot[V] {
	if len(f.stack) == 0 {
		return slot[V]{v: f.dom.Unknown()}
	}
	s := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return s
}

// PopN removes the top n entries and returns them deepest first.
func (f *Frame[V]) PopN(n int) []V {
	out := make([]V, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = f.Pop()
	}
	return out
}

// Peek returns the entry i positions below the top without removing it.
func (f *Frame[V]) Peek(i int) V {
	if i < 0 || i >= len(f.stack) {
		return f.dom.Unknown()
	}
	return f.stack[len(f.stack)-1-i].v
}

// popWords removes entries covering n stack words, deepest first. A missing
// word is filled with Unknown.
func (f *Frame[V]) popWords(n int) []slot[V] {
	var out []slot[V]
	for n > 0 {
		s := f.pop()
		out = append(out, s)
		if s.wide {
			n -= 2
		} else {
			n--
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (f *Frame[V]) pushAll(groups ...[]slot[V]) {
	for _, g := range groups {
		for _, s := range g {
			f.push(s)
		}
	}
}

// ClearStack empties the operand stack.
func (f *Frame[V]) ClearStack() {
	f.stack = f.stack[:0]
}

// Replace calls fn on every stack entry and local and stores the value it
// returns.
func (f *Frame[V]) Replace(fn func(V) V) {
	for i := range f.stack {
		f.stack[i].v = fn(f.stack[i].v)
	}
	for i := range f.locals {
		f.locals[i].v = fn(f.locals[i].v)
	}
}

// Load returns the value of local i.
func (f *Frame[V]) Load(i int) V {
	if i < 0 || i >= len(f.locals) {
		return f.dom.Unknown()
	}
	return f.locals[i].v
}

// Store sets local i. A wide value also invalidates slot i+1, and any wide
// value starting at i-1 is invalidated.
func (f *Frame[V]) Store(i int, v V, wide bool) {
	if i < 0 || i >= len(f.locals) {
		f.untracked = true
		return
	}
	if i > 0 && f.locals[i-1].wide {
		f.locals[i-1] = slot[V]{v: f.dom.Unknown()}
	}
	f.locals[i] = slot[V]{v: v, wide: wide}
	if wide && i+1 < len(f.locals) {
		f.locals[i+1] = slot[V]{v: f.dom.Unknown()}
	}
}

// Equal reports whether f and o hold equal stacks and locals.
func (f *Frame[V]) Equal(o *Frame[V]) bool {
	if len(f.stack) != len(o.stack) || len(f.locals) != len(o.locals) {
		return false
	}
	for i := range f.stack {
		if f.stack[i].wide != o.stack[i].wide || !f.dom.Equal(f.stack[i].v, o.stack[i].v) {
			return false
		}
	}
	for i := range f.locals {
		if f.locals[i].wide != o.locals[i].wide || !f.dom.Equal(f.locals[i].v, o.locals[i].v) {
			return false
		}
	}
	return true
}

// Key returns the canonical hash of the frame: stack depth, then every stack
// entry, then every local.
func (f *Frame[V]) Key() uint64 {
	d := xxhash.New()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(f.stack)))
	_, _ = d.Write(buf[:])
	write := func(s slot[V]) {
		if s.wide {
			_, _ = d.Write([]byte{1})
		} else {
			_, _ = d.Write([]byte{0})
		}
		f.dom.Hash(d, s.v)
	}
	for _, s := range f.stack {
		write(s)
	}
	for _, s := range f.locals {
		write(s)
	}
	return d.Sum64()
}

// join merges o into f. Stacks of different depth cannot be paired entry by
// entry, so the result keeps an empty stack.
func (f *Frame[V]) join(o *Frame[V]) {
	if len(f.stack) != len(o.stack) {
		f.stack = f.stack[:0]
	} else {
		for i := range f.stack {
			f.stack[i] = f.joinSlot(f.stack[i], o.stack[i])
		}
	}
	for i := range f.locals {
		if i < len(o.locals) {
			f.locals[i] = f.joinSlot(f.locals[i], o.locals[i])
		}
	}
	f.overflowed = f.overflowed || o.overflowed
	f.untracked = f.untracked || o.untracked
}

// joinLocals merges only the locals of o into f.
func (f *Frame[V]) joinLocals(o *Frame[V]) {
	for i := range f.locals {
		if i < len(o.locals) {
			f.locals[i] = f.joinSlot(f.locals[i], o.locals[i])
		}
	}
}

func (f *Frame[V]) joinSlot(a, b slot[V]) slot[V] {
	if a.wide != b.wide {
		return slot[V]{v: f.dom.Unknown()}
	}
	return slot[V]{v: f.dom.Join(a.v, b.v), wide: a.wide}
}
