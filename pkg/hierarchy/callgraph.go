package hierarchy

import (
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

// CallSite is one invoke instruction.
type CallSite struct {
	Caller *ir.Method
	Offset int
	Op     ir.Opcode
	Ref    classfile.MemberRef
}

// SiteOf returns the call site of an invoke instruction. invokedynamic has
// no member reference and is reported with an empty Ref.
func SiteOf(m *ir.Method, ins *ir.Instruction) (CallSite, bool) {
	if ins.Op.Category() != ir.CatInvoke {
		return CallSite{}, false
	}
	site := CallSite{Caller: m, Offset: ins.Offset, Op: ins.Op}
	if ins.Ref != nil {
		site.Ref = *ins.Ref
	}
	return site, true
}

// CandidateSet is the set of methods a call site may invoke. Resolved is
// false when the declared target or part of the receiver's supertype chain
// is not loaded; Methods is then a lower bound.
type CandidateSet struct {
	Methods  []*ir.Method
	Resolved bool
}

type targetKey struct {
	op  ir.Opcode
	ref classfile.MemberRef
}

// CallGraph resolves call sites by class-hierarchy analysis. Targets depend
// only on the opcode and member reference, so results are shared by every
// site naming the same member.
type CallGraph struct {
	u     *Universe
	cache *xsync.Map[targetKey, CandidateSet]
}

// NewCallGraph returns a call graph over u.
func NewCallGraph(u *Universe) *CallGraph {
	return &CallGraph{u: u, cache: xsync.NewMap[targetKey, CandidateSet]()}
}

// Universe returns the classes the graph resolves against.
func (g *CallGraph) Universe() *Universe {
	return g.u
}

// Targets returns the candidate callees of site.
func (g *CallGraph) Targets(site CallSite) CandidateSet {
	if site.Op == ir.OpInvokedynamic || site.Ref.Owner == "" {
		return CandidateSet{}
	}
	key := targetKey{op: site.Op, ref: site.Ref}
	if cs, ok := g.cache.Load(key); ok {
		return cs
	}
	cs := g.resolve(site.Op, site.Ref)
	g.cache.Store(key, cs)
	return cs
}

func (g *CallGraph) resolve(op ir.Opcode, ref classfile.MemberRef) CandidateSet {
	owner := ref.Owner
	if strings.HasPrefix(owner, "[") {
		// Array methods are those of Object.
		owner = rootClass
	}
	_, loaded := g.u.Class(owner)
	_, missing := g.u.Supertypes(owner)
	declared, ok := g.u.ResolveMethod(owner, ref.Name, ref.Descriptor)
	cs := CandidateSet{Resolved: loaded && ok && len(missing) == 0}
	if ok {
		cs.Methods = append(cs.Methods, declared)
	}
	if op == ir.OpInvokestatic || op == ir.OpInvokespecial {
		return cs
	}
	if ok && declared.Is(classfile.AccPrivate) {
		return cs
	}
	for _, name := range append([]string{owner}, g.u.Subtypes(owner)...) {
		c, ok := g.u.Class(name)
		if !ok || c.IsInterface() || c.Access&classfile.AccAbstract != 0 {
			continue
		}
		if m := g.u.Dispatch(name, ref.Name, ref.Descriptor); m != nil && !slices.Contains(cs.Methods, m) {
			cs.Methods = append(cs.Methods, m)
		}
	}
	slices.SortFunc(cs.Methods, func(a, b *ir.Method) int {
		return strings.Compare(a.String(), b.String())
	})
	return cs
}

// Edge links a call site to its candidates.
type Edge struct {
	Site    CallSite
	Targets CandidateSet
}

// Edges returns the resolved call sites of m in offset order.
func (g *CallGraph) Edges(m *ir.Method) []Edge {
	var out []Edge
	for i := range m.Instructions {
		site, ok := SiteOf(m, &m.Instructions[i])
		if !ok {
			continue
		}
		out = append(out, Edge{Site: site, Targets: g.Targets(site)})
	}
	return out
}

// Graph returns the method-level call graph of methods. Unresolved sites
// with no candidates are drawn to their symbolic reference.
func (g *CallGraph) Graph(methods []*ir.Method) *lattice.Graph {
	lg := &lattice.Graph{}
	for _, m := range methods {
		caller := m.String()
		lg.Nodes = append(lg.Nodes, caller)
		for _, e := range g.Edges(m) {
			if len(e.Targets.Methods) == 0 {
				if e.Site.Ref.Owner != "" {
					lg.Edges = append(lg.Edges, lattice.Edge{Caller: caller, Callee: e.Site.Ref.String()})
				}
				continue
			}
			for _, t := range e.Targets.Methods {
				lg.Edges = append(lg.Edges, lattice.Edge{Caller: caller, Callee: t.String()})
			}
		}
	}
	lg.Dedup()
	return lg
}

// DOT renders a call graph as Graphviz.
func DOT(lg *lattice.Graph, title string) string {
	return render.DOT(lg, title)
}
