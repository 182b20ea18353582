// Package nullness is the nullness domain of the flow engine: abstract
// values pairing a nullness with an optional type-use, a resolver that
// specializes generic return types to the receiver's type arguments, and
// the checks that turn flow states into issues.
package nullness

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/715d/classflow/pkg/ir"
)

// Value is an abstract operand or local.
type Value struct {
	Nullness ir.Nullness

	// Type is the value's type-use when known. Receivers carry it so calls
	// on them can be specialized.
	Type *ir.TypeUse

	// Local is the slot the value was loaded from, -1 if none. Null checks
	// refine that slot.
	Local int

	// NullLiteral marks the constant null.
	NullLiteral bool
}

// Unknown is the top value.
var Unknown = Value{Local: -1}

func nonNull(t *ir.TypeUse) Value {
	return Value{Nullness: ir.NonNull, Type: t, Local: -1}
}

// Domain implements the lattice operations over Value.
type Domain struct{}

func (Domain) Unknown() Value {
	return Unknown
}

// Join joins nullness; other facts survive only when both sides agree.
func (Domain) Join(a, b Value) Value {
	v := Value{
		Nullness:    ir.Join(a.Nullness, b.Nullness),
		Local:       -1,
		NullLiteral: a.NullLiteral && b.NullLiteral,
	}
	if a.Local == b.Local {
		v.Local = a.Local
	}
	if typesEqual(a.Type, b.Type) {
		v.Type = a.Type
	}
	return v
}

func (Domain) Equal(a, b Value) bool {
	return a.Nullness == b.Nullness && a.Local == b.Local &&
		a.NullLiteral == b.NullLiteral && typesEqual(a.Type, b.Type)
}

func (Domain) Hash(d *xxhash.Digest, v Value) {
	var buf [6]byte
	buf[0] = byte(v.Nullness)
	if v.NullLiteral {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:], uint32(int32(v.Local)))
	_, _ = d.Write(buf[:])
	if v.Type != nil {
		_, _ = d.WriteString(v.Type.String())
	}
}

func typesEqual(a, b *ir.TypeUse) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
