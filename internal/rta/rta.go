// Package rta provides Rapid Type Analysis (RTA) over loaded JVM classes, a
// fast algorithm for discovering reachable methods and instantiated classes.
// The algorithm was first described in:
//
// David F. Bacon and Peter F. Sweeney. 1996.
// Fast static analysis of C++ virtual function calls. (OOPSLA '96)
// http://doi.acm.org/10.1145/236337.236371
//
// The algorithm tabulates the cross-product of the set of instantiated
// classes with the set of virtual call sites. As each new class is
// instantiated, the methods it selects for every known call site become
// reachable, and as each new call site is discovered, the method every
// known instantiated class selects for it becomes reachable.
//
// Static, special and constructor calls add their resolved target directly.
// Methods referenced by method handles (lambdas and method references) are
// address-taken and reachable as soon as the handle is seen. The static
// initializer of a class becomes reachable with the first instruction that
// would initialize it.
package rta

import (
	"log/slog"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
)

// runtimeHooks are methods the JVM or the serialization machinery calls
// reflectively on instances of a class.
var runtimeHooks = map[string]string{
	"writeObject":      "(Ljava/io/ObjectOutputStream;)V",
	"readObject":       "(Ljava/io/ObjectInputStream;)V",
	"readObjectNoData": "()V",
	"writeReplace":     "()Ljava/lang/Object;",
	"readResolve":      "()Ljava/lang/Object;",
	"finalize":         "()V",
}

// serializable are the interfaces that enable serialization hooks.
var serializable = []string{"java/io/Serializable", "java/io/Externalizable"}

// A Result holds the reachable methods and the classes instantiated by
// reachable code.
type Result struct {
	// Reachable contains the set of reachable methods. AddrTaken is set when
	// the method is referenced by a method handle.
	//
	// (We wrap the bool in a struct to avoid inadvertent use of
	// "if Reachable[m] {" to test for set membership.)
	Reachable map[*ir.Method]struct{ AddrTaken bool }

	// Instantiated contains the classes allocated by reachable code.
	Instantiated map[string]bool
}

// IsReachable reports whether m was reached.
func (r *Result) IsReachable(m *ir.Method) bool {
	_, ok := r.Reachable[m]
	return ok
}

type siteKey struct {
	name, desc string
}

// Working state of the RTA algorithm.
type rta struct {
	result *Result
	u      *hierarchy.Universe

	worklist []*ir.Method

	ids  map[*ir.Method]int
	seen intsets.Sparse // ids of visited methods

	// virtualSites contains the owners of all reached virtual call sites,
	// grouped by method name and descriptor.
	virtualSites map[siteKey][]string

	// instantiated lists instantiated classes in discovery order.
	instantiated []string
	initialized  map[string]bool
}

func (r *rta) id(m *ir.Method) int {
	id, ok := r.ids[m]
	if !ok {
		id = len(r.ids)
		r.ids[m] = id
	}
	return id
}

// addReachable marks a method as potentially callable at run time, and
// ensures that it gets processed.
func (r *rta) addReachable(m *ir.Method, addrTaken bool) {
	if m == nil {
		return
	}
	v := r.result.Reachable[m]
	if addrTaken {
		v.AddrTaken = true
	}
	r.result.Reachable[m] = v
	if r.seen.Insert(r.id(m)) {
		r.worklist = append(r.worklist, m)
	}
}

// initialize marks the static initializer of class reachable.
func (r *rta) initialize(class string) {
	if r.initialized[class] {
		return
	}
	r.initialized[class] = true
	if c, ok := r.u.Class(class); ok {
		r.addReachable(c.Method("<clinit>", "()V"), false)
		if c.Super != "" {
			r.initialize(c.Super)
		}
	}
}

// ---------- instantiated classes × virtual sites ----------

// instantiate is called each time a class is allocated.
func (r *rta) instantiate(class string) {
	if r.result.Instantiated[class] {
		return
	}
	r.result.Instantiated[class] = true
	r.instantiated = append(r.instantiated, class)
	r.initialize(class)

	for key, owners := range r.virtualSites {
		for _, owner := range owners {
			if r.u.IsSubtype(class, owner) {
				r.addReachable(r.u.Dispatch(class, key.name, key.desc), false)
				break
			}
		}
	}

	if r.isSerializable(class) {
		for name, desc := range runtimeHooks {
			r.addReachable(r.u.Dispatch(class, name, desc), false)
		}
	} else {
		r.addReachable(r.u.Dispatch(class, "finalize", runtimeHooks["finalize"]), false)
	}
}

func (r *rta) isSerializable(class string) bool {
	for _, s := range serializable {
		if r.u.IsSubtype(class, s) {
			return true
		}
	}
	// A serializable supertype may be outside the universe.
	names, _ := r.u.Supertypes(class)
	for _, name := range append(names, class) {
		c, ok := r.u.Class(name)
		if !ok {
			continue
		}
		for _, iface := range c.Interfaces {
			for _, s := range serializable {
				if iface == s {
					return true
				}
			}
		}
	}
	return false
}

// visitVirtual is called each time a virtual or interface call is reached.
func (r *rta) visitVirtual(ref classfile.MemberRef) {
	key := siteKey{ref.Name, ref.Descriptor}
	owners := r.virtualSites[key]
	for _, o := range owners {
		if o == ref.Owner {
			return
		}
	}
	r.virtualSites[key] = append(owners, ref.Owner)

	for _, class := range r.instantiated {
		if r.u.IsSubtype(class, ref.Owner) {
			r.addReachable(r.u.Dispatch(class, ref.Name, ref.Descriptor), false)
		}
	}
	// Overrides behind an unloaded owner are found only through loaded
	// subtypes.
	if _, ok := r.u.Class(ref.Owner); !ok {
		slog.Debug("virtual call on unloaded class", "owner", ref.Owner, "method", ref.Name)
	}
}

// visitHandle is called for each method handle constant.
func (r *rta) visitHandle(c *classfile.Constant) {
	if c == nil || c.Kind != classfile.ConstantMethodHandle || c.Ref == nil {
		return
	}
	ref := *c.Ref
	switch c.RefKind {
	case classfile.RefInvokeVirtual, classfile.RefInvokeInterface:
		r.visitVirtual(ref)
		if m, ok := r.u.ResolveMethod(ref.Owner, ref.Name, ref.Descriptor); ok {
			r.addReachable(m, true)
		}
	case classfile.RefNewInvokeSpecial:
		r.instantiate(ref.Owner)
		fallthrough
	case classfile.RefInvokeStatic, classfile.RefInvokeSpecial:
		if m, ok := r.u.ResolveMethod(ref.Owner, ref.Name, ref.Descriptor); ok {
			r.addReachable(m, true)
		}
	}
}

// ---------- main algorithm ----------

// visitMethod processes the code of m.
func (r *rta) visitMethod(m *ir.Method) {
	for i := range m.Instructions {
		ins := &m.Instructions[i]
		switch ins.Op {
		case ir.OpNew:
			r.instantiate(ins.Class)
		case ir.OpGetstatic, ir.OpPutstatic:
			r.initialize(ins.Ref.Owner)
		case ir.OpInvokestatic, ir.OpInvokespecial:
			if ins.Op == ir.OpInvokestatic {
				r.initialize(ins.Ref.Owner)
			}
			if t, ok := r.u.ResolveMethod(ins.Ref.Owner, ins.Ref.Name, ins.Ref.Descriptor); ok {
				r.addReachable(t, false)
			}
		case ir.OpInvokevirtual, ir.OpInvokeinterface:
			r.visitVirtual(*ins.Ref)
		case ir.OpInvokedynamic:
			if ins.Dynamic == nil {
				continue
			}
			r.visitHandle(&ins.Dynamic.Bootstrap.Handle)
			for j := range ins.Dynamic.Bootstrap.Args {
				r.visitHandle(&ins.Dynamic.Bootstrap.Args[j])
			}
		case ir.OpLdc, ir.OpLdcW:
			r.visitHandle(ins.Const)
		}
	}
}

// Analyze performs Rapid Type Analysis over u, starting at the specified
// root methods. It returns nil if no roots were specified.
func Analyze(u *hierarchy.Universe, roots []*ir.Method) *Result {
	if len(roots) == 0 {
		return nil
	}

	r := &rta{
		result: &Result{
			Reachable:    make(map[*ir.Method]struct{ AddrTaken bool }),
			Instantiated: make(map[string]bool),
		},
		u:            u,
		ids:          make(map[*ir.Method]int),
		virtualSites: make(map[siteKey][]string),
		initialized:  make(map[string]bool),
	}

	const initialWorklistCap = 256
	r.worklist = make([]*ir.Method, 0, initialWorklistCap)

	for _, root := range roots {
		r.addReachable(root, false)
		if root.IsConstructor() {
			r.instantiate(root.Owner)
		}
	}

	// Visit methods, processing their instructions, and adding new methods
	// to the worklist, until a fixed point is reached. The two buffers are
	// swapped on every round to reuse their storage.
	shadow := make([]*ir.Method, 0, initialWorklistCap)
	for len(r.worklist) > 0 {
		shadow, r.worklist = r.worklist, shadow[:0]
		for _, m := range shadow {
			r.visitMethod(m)
		}
	}
	return r.result
}

// Roots returns the entry points of classes: public and protected methods of
// public classes, static initializers, main methods and constructors of
// classes instantiated from outside, which are all public constructors.
func Roots(classes []*ir.Class) []*ir.Method {
	var out []*ir.Method
	for _, c := range classes {
		exported := c.Access&classfile.AccPublic != 0
		for _, m := range c.Methods {
			switch {
			case m.Name == "<clinit>":
			case m.Name == "main" && m.Descriptor == "([Ljava/lang/String;)V" && m.IsStatic():
			case exported && (m.Is(classfile.AccPublic) || m.Is(classfile.AccProtected)):
			default:
				continue
			}
			out = append(out, m)
		}
	}
	return out
}
