package ir

import "strings"

// TypeKind distinguishes the shapes of a TypeUse.
type TypeKind uint8

// TypeUse kinds.
const (
	KindBase TypeKind = iota + 1
	KindVoid
	KindClass
	KindTypeVar
	KindArray
	KindWildcard
)

// Variance is the bound kind of a wildcard type argument.
type Variance uint8

// Wildcard variances.
const (
	Unbounded Variance = iota
	Extends
	Super
)

// TypeUse is a nullness-annotated type tree.
//
// Name holds the internal class name for KindClass, the variable name for
// KindTypeVar and the descriptor character for KindBase. Args are the type
// arguments of a class type and Inner the next type in a nested chain such as
// Outer<A>.Inner<B>. Elem is the array component. Bound and Variance describe
// a wildcard.
type TypeUse struct {
	Kind     TypeKind
	Nullness Nullness
	Name     string
	Args     []TypeUse
	Inner    *TypeUse
	Elem     *TypeUse
	Bound    *TypeUse
	Variance Variance
}

// IsReference reports whether values of this type are references.
func (t TypeUse) IsReference() bool {
	switch t.Kind {
	case KindClass, KindTypeVar, KindArray, KindWildcard:
		return true
	}
	return false
}

// Wide reports whether the type takes two local or stack slots.
func (t TypeUse) Wide() bool {
	return t.Kind == KindBase && (t.Name == "J" || t.Name == "D")
}

// Top returns the nullness of the value itself. For nested class chains the
// innermost type decides when it carries an annotation.
func (t TypeUse) Top() Nullness {
	if t.Kind == KindClass && t.Inner != nil {
		last := t.Inner
		for last.Inner != nil {
			last = last.Inner
		}
		if last.Nullness != Unknown {
			return last.Nullness
		}
	}
	return t.Nullness
}

// ClassName returns the innermost class name of a class type.
func (t TypeUse) ClassName() string {
	if t.Kind != KindClass {
		return ""
	}
	for t.Inner != nil {
		t = *t.Inner
	}
	return t.Name
}

// Clone returns a deep copy.
func (t TypeUse) Clone() TypeUse {
	out := t
	if t.Args != nil {
		out.Args = make([]TypeUse, len(t.Args))
		for i, a := range t.Args {
			out.Args[i] = a.Clone()
		}
	}
	out.Inner = clonePtr(t.Inner)
	out.Elem = clonePtr(t.Elem)
	out.Bound = clonePtr(t.Bound)
	return out
}

func clonePtr(t *TypeUse) *TypeUse {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}

// Equal reports structural equality including nullness at every position.
func (t TypeUse) Equal(o TypeUse) bool {
	if t.Kind != o.Kind || t.Nullness != o.Nullness || t.Name != o.Name ||
		t.Variance != o.Variance || len(t.Args) != len(o.Args) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return ptrEqual(t.Inner, o.Inner) && ptrEqual(t.Elem, o.Elem) && ptrEqual(t.Bound, o.Bound)
}

func ptrEqual(a, b *TypeUse) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Walk calls fn for t and every nested position, depth first.
func (t *TypeUse) Walk(fn func(*TypeUse)) {
	fn(t)
	for i := range t.Args {
		t.Args[i].Walk(fn)
	}
	for _, p := range []*TypeUse{t.Inner, t.Elem, t.Bound} {
		if p != nil {
			p.Walk(fn)
		}
	}
}

func (t TypeUse) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t TypeUse) write(sb *strings.Builder) {
	switch t.Nullness {
	case NonNull:
		sb.WriteString("@NonNull ")
	case Nullable:
		sb.WriteString("@Nullable ")
	}
	switch t.Kind {
	case KindBase:
		sb.WriteString(baseNames[t.Name])
	case KindVoid:
		sb.WriteString("void")
	case KindTypeVar:
		sb.WriteString(t.Name)
	case KindArray:
		if t.Elem != nil {
			t.Elem.write(sb)
		}
		sb.WriteString("[]")
	case KindWildcard:
		sb.WriteString("?")
		if t.Bound != nil {
			if t.Variance == Super {
				sb.WriteString(" super ")
			} else {
				sb.WriteString(" extends ")
			}
			t.Bound.write(sb)
		}
	case KindClass:
		sb.WriteString(strings.ReplaceAll(t.Name, "/", "."))
		if len(t.Args) > 0 {
			sb.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				a.write(sb)
			}
			sb.WriteByte('>')
		}
		if t.Inner != nil {
			sb.WriteByte('.')
			t.Inner.write(sb)
		}
	}
}

var baseNames = map[string]string{
	"B": "byte", "C": "char", "D": "double", "F": "float",
	"I": "int", "J": "long", "S": "short", "Z": "boolean",
}

// TypeParam is a generic type parameter with its bounds. ClassBound is nil
// when the parameter only has interface bounds.
type TypeParam struct {
	Name            string
	ClassBound      *TypeUse
	InterfaceBounds []TypeUse
}

// BoundNullness returns the nullness of the first bound, Unknown without one.
func (p TypeParam) BoundNullness() Nullness {
	if p.ClassBound != nil {
		return p.ClassBound.Top()
	}
	if len(p.InterfaceBounds) > 0 {
		return p.InterfaceBounds[0].Top()
	}
	return Unknown
}

// bound returns the bound addressed by a type annotation bound index.
// Index 0 is the class bound, interface bounds follow from 1.
func (p *TypeParam) bound(i int) *TypeUse {
	if i == 0 {
		return p.ClassBound
	}
	if i-1 < len(p.InterfaceBounds) {
		return &p.InterfaceBounds[i-1]
	}
	return nil
}
