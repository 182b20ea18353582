package dataflow

import (
	"fmt"
	"log/slog"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/ir"
)

// Limits bound the work done for one method.
type Limits struct {
	MaxStack  int
	MaxLocals int
	MaxVisits int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxStack: 64, MaxLocals: 256, MaxVisits: 10000}
}

// BudgetExceeded records that a limit was hit. The affected values degraded
// to Unknown; it is reported on Result.Budget, never returned as an error.
type BudgetExceeded struct {
	Limit string
	Value int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("analysis budget exceeded: %s %d", e.Limit, e.Value)
}

// Result holds the fixed point of one method.
type Result[V any] struct {
	Graph *cfg.Graph

	// In is the state at entry to each block, nil for blocks never reached.
	In []*Frame[V]

	// Visits counts how often each block was processed.
	Visits []int

	// Budget is set when a limit was hit. When the visit budget runs out
	// every reached entry state is widened to Unknown.
	Budget *BudgetExceeded

	mc *Machine[V]
}

// Solve computes the fixed point of a over g. Blocks are taken from the
// worklist in reverse postorder, so a method without loops processes each
// reachable block exactly once. A block is requeued only when joining an
// incoming state widens its recorded entry state.
func Solve[V any](g *cfg.Graph, a Analysis[V], limits Limits) (*Result[V], error) {
	m := g.Method
	if len(g.Order) == 0 {
		return nil, fmt.Errorf("method %s has no reachable code", m)
	}
	r := &Result[V]{
		Graph:  g,
		In:     make([]*Frame[V], len(g.Blocks)),
		Visits: make([]int, len(g.Blocks)),
		mc:     NewMachine(a),
	}
	locals := m.MaxLocals
	if limits.MaxLocals > 0 && locals > limits.MaxLocals {
		locals = limits.MaxLocals
		r.exceed("max_locals", limits.MaxLocals)
	}

	entry := NewFrame[V](a, limits.MaxStack, locals)
	a.Entry(m, entry)
	r.In[g.Order[0]] = entry

	pos := make([]int, len(g.Blocks))
	for i, id := range g.Order {
		pos[id] = i
	}
	refiner, _ := a.(Refiner[V])

	var work intsets.Sparse
	work.Insert(0)
	total := 0
	for !work.IsEmpty() {
		if limits.MaxVisits > 0 && total >= limits.MaxVisits {
			r.exceed("max_block_visits", limits.MaxVisits)
			slog.Debug("block visit budget exhausted", "method", m.String(), "visits", total)
			r.widen(a)
			break
		}
		var p int
		work.TakeMin(&p)
		total++
		id := g.Order[p]
		b := g.Blocks[id]
		r.Visits[id]++

		out, before, thrown := r.run(b, r.In[id])
		if out.overflowed {
			r.exceed("max_stack_depth", limits.MaxStack)
		}
		if out.untracked {
			r.exceed("max_locals", limits.MaxLocals)
		}
		for _, e := range b.Succs {
			var next *Frame[V]
			switch {
			case e.Kind == cfg.Exception:
				next = thrown.Clone()
				next.ClearStack()
				next.Push(a.Caught(m.Handlers[e.Handler]))
			case refiner != nil && b.Last().Op.Category() == ir.CatBranch:
				next = out.Clone()
				refiner.Refine(b.Last(), before, e.Kind == cfg.Branch && e.Taken, next)
			default:
				next = out
			}
			if r.merge(e.To, next) {
				work.Insert(pos[e.To])
			}
		}
	}
	return r, nil
}

// widen sets every value held in a reached entry state to Unknown. The
// states stopped short of the fixed point and only Unknown is known to
// cover every path into them.
func (r *Result[V]) widen(dom Domain[V]) {
	for _, f := range r.In {
		if f != nil {
			f.Replace(func(V) V { return dom.Unknown() })
		}
	}
}

func (r *Result[V]) exceed(limit string, value int) {
	if r.Budget == nil {
		r.Budget = &BudgetExceeded{Limit: limit, Value: value}
	}
}

// run interprets a block from its entry state. It returns the exit state,
// the state ahead of the last instruction and the locals joined over every
// instruction that may throw.
func (r *Result[V]) run(b *cfg.Block, in *Frame[V]) (out, before, thrown *Frame[V]) {
	f := in.Clone()
	thrown = in.Clone()
	for i := range b.Instructions {
		ins := &b.Instructions[i]
		if i == len(b.Instructions)-1 {
			before = f.Clone()
		}
		if i > 0 {
			thrown.joinLocals(f)
		}
		r.mc.Step(ins, f)
	}
	return f, before, thrown
}

// merge joins f into the entry state of block id and reports whether it
// changed. Frame keys decide the common unchanged case before the full
// comparison.
func (r *Result[V]) merge(id int, f *Frame[V]) bool {
	cur := r.In[id]
	if cur == nil {
		r.In[id] = f.Clone()
		return true
	}
	prev := cur.Clone()
	key := cur.Key()
	cur.join(f)
	if cur.Key() != key {
		return true
	}
	return !cur.Equal(prev)
}

// StateAt returns the state ahead of the instruction at offset, or false when
// the offset is not an instruction or its block was never reached.
func (r *Result[V]) StateAt(offset int) (*Frame[V], bool) {
	b, ok := r.Graph.BlockAt(offset)
	if !ok || r.In[b.ID] == nil {
		return nil, false
	}
	f := r.In[b.ID].Clone()
	for i := range b.Instructions {
		ins := &b.Instructions[i]
		if ins.Offset == offset {
			return f, true
		}
		r.mc.Step(ins, f)
	}
	return nil, false
}

// Replay walks every reached block in offset order and calls fn with the
// state ahead of each instruction. fn must not keep or modify the frame.
func (r *Result[V]) Replay(fn func(b *cfg.Block, ins *ir.Instruction, before *Frame[V])) {
	for _, b := range r.Graph.Blocks {
		if r.In[b.ID] == nil {
			continue
		}
		f := r.In[b.ID].Clone()
		for i := range b.Instructions {
			ins := &b.Instructions[i]
			fn(b, ins, f)
			r.mc.Step(ins, f)
		}
	}
}

// ParamSlots returns the local slot of each declared parameter. The receiver
// of an instance method occupies slot 0 and is not included.
func ParamSlots(m *ir.Method) []int {
	slot := 0
	if !m.IsStatic() {
		slot = 1
	}
	out := make([]int, len(m.Params))
	for i, p := range m.Params {
		out[i] = slot
		slot++
		if p.Wide() {
			slot++
		}
	}
	return out
}
