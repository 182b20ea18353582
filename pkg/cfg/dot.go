package cfg

import (
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"github.com/715d/classflow/pkg/ir"
)

// ToLattice converts the graph for rendering. Block bounds and call offsets
// are bytecode offsets; conditional edges are labeled T and F.
func (g *Graph) ToLattice() *lattice.FuncCFG {
	fn := &lattice.FuncCFG{Name: g.Method.String()}
	for _, b := range g.Blocks {
		lb := &lattice.BasicBlock{
			ID:    b.ID,
			Start: b.Start,
			End:   b.End,
			Term:  len(b.Succs) == 0,
		}
		for _, e := range b.Succs {
			s := lattice.Successor{BlockID: e.To}
			switch {
			case e.Kind == Branch && e.Taken:
				s.Cond = "T"
			case e.Kind == Fallthrough && b.Last().Op.Category() == ir.CatBranch:
				s.Cond = "F"
			}
			lb.Succs = append(lb.Succs, s)
		}
		for _, ins := range b.Instructions {
			if ins.Ref != nil && ins.Op.Category() == ir.CatInvoke {
				lb.Calls = append(lb.Calls, lattice.CallSite{Offset: ins.Offset, Callee: ins.Ref.String()})
			}
		}
		fn.Blocks = append(fn.Blocks, lb)
	}
	return fn
}

// DOT renders the graphs of several methods as one Graphviz document.
func DOT(graphs []*Graph, title string) string {
	cg := &lattice.CFGGraph{}
	for _, g := range graphs {
		cg.Funcs = append(cg.Funcs, g.ToLattice())
	}
	return render.DOTCFG(cg, title)
}
