// Package hierarchy resolves supertype chains, method lookup and
// class-hierarchy call targets over the set of loaded classes.
//
// Classes refer to each other by name only. A name that is not in the
// universe is reported as missing, never treated as a class without
// methods, so callers can tell "no override exists" from "not known".
package hierarchy

import (
	"iter"
	"slices"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

// rootClass is the implicit supertype of every class. Its absence from the
// classpath does not make resolution unknown.
const rootClass = "java/lang/Object"

// Universe is the read-only set of loaded classes indexed by name.
type Universe struct {
	classes map[string]*ir.Class
	names   []string
	direct  map[string][]string
}

// NewUniverse indexes classes. When a name occurs twice the first class wins,
// matching classpath order.
func NewUniverse(classes []*ir.Class) *Universe {
	u := &Universe{
		classes: make(map[string]*ir.Class, len(classes)),
		direct:  make(map[string][]string),
	}
	for _, c := range classes {
		if _, dup := u.classes[c.Name]; dup {
			continue
		}
		u.classes[c.Name] = c
		u.names = append(u.names, c.Name)
	}
	slices.Sort(u.names)
	for _, name := range u.names {
		for _, s := range directSupers(u.classes[name]) {
			u.direct[s] = append(u.direct[s], name)
		}
	}
	return u
}

func directSupers(c *ir.Class) []string {
	var out []string
	if c.Super != "" {
		out = append(out, c.Super)
	}
	return append(out, c.Interfaces...)
}

// Class returns the loaded class with the given internal name.
func (u *Universe) Class(name string) (*ir.Class, bool) {
	c, ok := u.classes[name]
	return c, ok
}

// Classes returns every class sorted by name.
func (u *Universe) Classes() []*ir.Class {
	out := make([]*ir.Class, len(u.names))
	for i, n := range u.names {
		out[i] = u.classes[n]
	}
	return out
}

// Supertypes returns the loaded supertypes of name in breadth-first order,
// superclass before interfaces at each level, and the names that could not
// be found.
func (u *Universe) Supertypes(name string) (supers, missing []string) {
	seen := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		c, ok := u.classes[queue[0]]
		queue = queue[1:]
		if !ok {
			continue
		}
		for _, s := range directSupers(c) {
			if seen[s] {
				continue
			}
			seen[s] = true
			if _, ok := u.classes[s]; !ok {
				if s != rootClass {
					missing = append(missing, s)
				}
				continue
			}
			supers = append(supers, s)
			queue = append(queue, s)
		}
	}
	return supers, missing
}

// Subtypes returns every loaded class that extends or implements name,
// directly or not, sorted by name.
func (u *Universe) Subtypes(name string) []string {
	seen := map[string]bool{name: true}
	var out []string
	work := []string{name}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range u.direct[n] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
				work = append(work, s)
			}
		}
	}
	slices.Sort(out)
	return out
}

// IsSubtype reports whether sub is sup or one of its loaded subtypes.
func (u *Universe) IsSubtype(sub, sup string) bool {
	if sub == sup {
		return true
	}
	supers, _ := u.Supertypes(sub)
	return slices.Contains(supers, sup)
}

// superclasses yields name and its loaded superclasses, nearest first. The
// walk stops at the first missing class or at a class already visited.
func (u *Universe) superclasses(name string) iter.Seq[*ir.Class] {
	return func(yield func(*ir.Class) bool) {
		seen := make(map[string]bool)
		for c, ok := u.classes[name]; ok && !seen[c.Name]; c, ok = u.classes[c.Super] {
			seen[c.Name] = true
			if !yield(c) {
				return
			}
		}
	}
}

// ResolveMethod finds the method a symbolic reference names: the owner and
// its superclasses first, then the superinterfaces, preferring a default
// method over an abstract declaration.
func (u *Universe) ResolveMethod(owner, name, desc string) (*ir.Method, bool) {
	for c := range u.superclasses(owner) {
		if m := c.Method(name, desc); m != nil {
			return m, true
		}
	}
	return u.interfaceMethod(owner, name, desc)
}

func (u *Universe) interfaceMethod(owner, name, desc string) (*ir.Method, bool) {
	supers, _ := u.Supertypes(owner)
	var abstract *ir.Method
	for _, s := range supers {
		c := u.classes[s]
		if !c.IsInterface() {
			continue
		}
		m := c.Method(name, desc)
		if m == nil || m.IsStatic() || m.Is(classfile.AccPrivate) {
			continue
		}
		if !m.Is(classfile.AccAbstract) {
			return m, true
		}
		if abstract == nil {
			abstract = m
		}
	}
	return abstract, abstract != nil
}

// Dispatch returns the method a virtual call selects on an instance of class
// name: the first concrete declaration up the superclass chain, else a
// default method.
func (u *Universe) Dispatch(name, method, desc string) *ir.Method {
	for c := range u.superclasses(name) {
		m := c.Method(method, desc)
		if m == nil || m.IsStatic() {
			continue
		}
		if m.Is(classfile.AccAbstract) {
			break
		}
		return m
	}
	m, ok := u.interfaceMethod(name, method, desc)
	if !ok || m.Is(classfile.AccAbstract) {
		return nil
	}
	return m
}

// Overridden returns the methods m overrides or implements in its loaded
// supertypes, in breadth-first supertype order.
func (u *Universe) Overridden(m *ir.Method) []*ir.Method {
	if m.IsStatic() || m.Is(classfile.AccPrivate) || m.IsConstructor() || m.Name == "<clinit>" {
		return nil
	}
	supers, _ := u.Supertypes(m.Owner)
	var out []*ir.Method
	for _, s := range supers {
		sm := u.classes[s].Method(m.Name, m.Descriptor)
		if sm == nil || sm.IsStatic() || sm.Is(classfile.AccPrivate) {
			continue
		}
		out = append(out, sm)
	}
	return out
}
