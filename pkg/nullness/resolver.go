package nullness

import (
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
)

// maxSupertypeDepth bounds the walk from a receiver type up to the class
// that declares a member.
const maxSupertypeDepth = 32

// Resolver computes the values produced by member accesses.
type Resolver struct {
	u *hierarchy.Universe
}

// NewResolver returns a resolver over u.
func NewResolver(u *hierarchy.Universe) *Resolver {
	return &Resolver{u: u}
}

// ReturnValue returns the value a call pushes. When the callee's return type
// mentions type variables of its class and the receiver's type binds them,
// the return type is specialized to the receiver. A nullness declared on the
// return itself always wins, so specialization can only sharpen Unknown.
func (r *Resolver) ReturnValue(op ir.Opcode, ref classfile.MemberRef, receiver Value) Value {
	m, ok := r.u.ResolveMethod(ref.Owner, ref.Name, ref.Descriptor)
	if !ok || !m.Return.IsReference() {
		return Unknown
	}
	ret := m.Return.Clone()
	if op != ir.OpInvokestatic && receiver.Type != nil {
		ret, _ = Substitute(ret, r.Bindings(m.Owner, receiver.Type))
	}
	return r.specialized(m.Return, ret)
}

// FieldValue returns the value a field read pushes, specialized like a call
// return for instance fields.
func (r *Resolver) FieldValue(op ir.Opcode, ref classfile.MemberRef, receiver Value) Value {
	f, ok := r.field(ref)
	if !ok || !f.Type.IsReference() {
		return Unknown
	}
	t := f.Type.Clone()
	if op == ir.OpGetfield && receiver.Type != nil {
		t, _ = Substitute(t, r.Bindings(f.Owner, receiver.Type))
	}
	return r.specialized(f.Type, t)
}

func (r *Resolver) specialized(declared, substituted ir.TypeUse) Value {
	n := declared.Top()
	if n == ir.Unknown {
		n = substituted.Top()
	}
	return Value{Nullness: n, Type: &substituted, Local: -1}
}

func (r *Resolver) field(ref classfile.MemberRef) (*ir.Field, bool) {
	seen := make(map[string]bool)
	queue := []string{ref.Owner}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		c, ok := r.u.Class(name)
		if !ok {
			continue
		}
		if f := c.Field(ref.Name); f != nil && f.Descriptor == ref.Descriptor {
			return f, true
		}
		queue = append(queue, c.Interfaces...)
		if c.Super != "" {
			queue = append(queue, c.Super)
		}
	}
	return nil, false
}

// Bindings maps the type parameters of class decl to the type arguments the
// receiver type supplies for it, following generic supertypes when the
// receiver is a subclass. A raw or unrelated receiver binds nothing.
func (r *Resolver) Bindings(decl string, receiver *ir.TypeUse) map[string]ir.TypeUse {
	cur := *receiver
	for range maxSupertypeDepth {
		if cur.Kind != ir.KindClass {
			return nil
		}
		if node := findClass(&cur, decl); node != nil {
			c, ok := r.u.Class(decl)
			if !ok {
				return nil
			}
			return bind(c.TypeParams, node.Args)
		}
		name := cur.ClassName()
		c, ok := r.u.Class(name)
		if !ok {
			return nil
		}
		b := bind(c.TypeParams, innermost(&cur).Args)
		next, found := r.towards(c, decl)
		if !found {
			return nil
		}
		cur, _ = Substitute(next.Clone(), b)
	}
	return nil
}

// towards returns the generic supertype of c on the path to decl.
func (r *Resolver) towards(c *ir.Class, decl string) (ir.TypeUse, bool) {
	var candidates []ir.TypeUse
	if c.SuperType != nil {
		candidates = append(candidates, *c.SuperType)
	}
	candidates = append(candidates, c.InterfaceTypes...)
	for _, s := range candidates {
		if r.u.IsSubtype(s.ClassName(), decl) {
			return s, true
		}
	}
	return ir.TypeUse{}, false
}

func innermost(t *ir.TypeUse) *ir.TypeUse {
	for t.Inner != nil {
		t = t.Inner
	}
	return t
}

func findClass(t *ir.TypeUse, name string) *ir.TypeUse {
	for ; t != nil; t = t.Inner {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func bind(params []ir.TypeParam, args []ir.TypeUse) map[string]ir.TypeUse {
	if len(params) == 0 || len(params) != len(args) {
		return nil
	}
	out := make(map[string]ir.TypeUse, len(params))
	for i, p := range params {
		out[p.Name] = args[i]
	}
	return out
}

// Substitute replaces type variables with their bindings at every depth.
// A variable use annotated @Nullable stays nullable after substitution. The
// boolean reports whether t itself is a type variable left unbound.
func Substitute(t ir.TypeUse, bindings map[string]ir.TypeUse) (ir.TypeUse, bool) {
	switch t.Kind {
	case ir.KindTypeVar:
		b, ok := bindings[t.Name]
		if !ok {
			return t.Clone(), true
		}
		out := b.Clone()
		if t.Nullness == ir.Nullable {
			out.Nullness = ir.Nullable
		}
		return out, false
	case ir.KindArray:
		if t.Elem != nil {
			e, _ := Substitute(*t.Elem, bindings)
			t.Elem = &e
		}
	case ir.KindClass:
		if t.Args != nil {
			args := make([]ir.TypeUse, len(t.Args))
			for i, a := range t.Args {
				args[i], _ = Substitute(a, bindings)
			}
			t.Args = args
		}
		if t.Inner != nil {
			in, _ := Substitute(*t.Inner, bindings)
			t.Inner = &in
		}
	case ir.KindWildcard:
		if t.Bound != nil {
			b, _ := Substitute(*t.Bound, bindings)
			t.Bound = &b
		}
	}
	return t, false
}
