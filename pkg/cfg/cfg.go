// Package cfg partitions a method's instructions into basic blocks and links
// them with normal and exception edges.
//
// Leaders are the method entry, every branch and switch target, every
// instruction following a transfer of control, every handler entry and the
// start and end of every protected range. Because range boundaries are
// leaders, a block lies either wholly inside or wholly outside each range,
// which lets exception edges be attached per block in exception table order.
package cfg

import (
	"fmt"
	"slices"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/classflow/pkg/ir"
)

// EdgeKind classifies a control-flow edge.
type EdgeKind uint8

// Edge kinds.
const (
	Fallthrough EdgeKind = iota
	Branch
	Goto
	Switch
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "fallthrough"
	case Branch:
		return "branch"
	case Goto:
		return "goto"
	case Switch:
		return "switch"
	case Exception:
		return "exception"
	}
	return fmt.Sprintf("EdgeKind(%d)", uint8(k))
}

// Edge is a successor edge.
type Edge struct {
	To   int
	Kind EdgeKind

	// Taken distinguishes the taken side of a conditional branch from its
	// fallthrough.
	Taken bool

	// Handler indexes Method.Handlers for exception edges.
	Handler   int
	CatchType string
}

// Block is a basic block. Instructions aliases the method's instruction
// slice.
type Block struct {
	ID    int
	Start int
	// End is the offset just past the last instruction.
	End          int
	Instructions []ir.Instruction

	Succs []Edge
	Preds []int

	// Owners are the entry offsets of the handlers whose code includes this
	// block, following normal edges from the handler entry.
	Owners []int

	// HandlerEntry is set when an exception handler starts here.
	HandlerEntry bool
	Reachable    bool
}

// Last returns the block's final instruction.
func (b *Block) Last() *ir.Instruction {
	return &b.Instructions[len(b.Instructions)-1]
}

// OwnedBy reports whether the handler entered at offset owns the block.
func (b *Block) OwnedBy(handler int) bool {
	return slices.Contains(b.Owners, handler)
}

// Graph is the control-flow graph of one method. It is immutable once built
// and shared by every analysis of the method.
type Graph struct {
	Method *ir.Method
	Blocks []*Block

	// Order lists the ids of reachable blocks in reverse postorder.
	Order []int

	blockOf []int // instruction index to block id
}

// InvalidExceptionTableError reports an exception table row that does not fit
// the method's code.
type InvalidExceptionTableError struct {
	Index   int
	Reason  string
	Start   int
	End     int
	Handler int
}

func (e *InvalidExceptionTableError) Error() string {
	return fmt.Sprintf("invalid exception table entry %d [%d, %d) -> %d: %s",
		e.Index, e.Start, e.End, e.Handler, e.Reason)
}

// Build constructs the graph of a method with code.
func Build(m *ir.Method) (*Graph, error) {
	if len(m.Instructions) == 0 {
		return nil, fmt.Errorf("method %s has no code", m)
	}
	if err := validateHandlers(m); err != nil {
		return nil, err
	}

	leaders := findLeaders(m)
	g := &Graph{Method: m, blockOf: make([]int, len(m.Instructions))}
	for i := 0; i < len(m.Instructions); {
		j := i + 1
		for j < len(m.Instructions) && !leaders.Has(j) {
			j++
		}
		b := &Block{
			ID:           len(g.Blocks),
			Start:        m.Instructions[i].Offset,
			End:          m.Instructions[j-1].Next(),
			Instructions: m.Instructions[i:j],
		}
		for k := i; k < j; k++ {
			g.blockOf[k] = b.ID
		}
		g.Blocks = append(g.Blocks, b)
		i = j
	}

	for _, h := range m.Handlers {
		g.blockStarting(h.Handler).HandlerEntry = true
	}
	for _, b := range g.Blocks {
		g.link(b)
	}
	g.markReachable()
	g.assignOwners()
	return g, nil
}

func validateHandlers(m *ir.Method) error {
	end := m.CodeEnd()
	for i, h := range m.Handlers {
		fail := func(reason string) error {
			return &InvalidExceptionTableError{Index: i, Reason: reason, Start: h.Start, End: h.End, Handler: h.Handler}
		}
		switch {
		case h.Start < 0 || h.End < 0 || h.Handler < 0:
			return fail("negative offset")
		case h.Start >= h.End:
			return fail("empty range")
		case h.End > end:
			return fail("range ends past the code")
		case h.Handler >= end:
			return fail("handler past the code")
		}
		if _, ok := m.Index(h.Start); !ok {
			return fail("range start is not an instruction")
		}
		if _, ok := m.Index(h.End); !ok && h.End != end {
			return fail("range end is not an instruction")
		}
		if _, ok := m.Index(h.Handler); !ok {
			return fail("handler is not an instruction")
		}
	}
	return nil
}

// findLeaders returns the instruction indexes that start blocks.
func findLeaders(m *ir.Method) *intsets.Sparse {
	var leaders intsets.Sparse
	mark := func(offset int) {
		if i, ok := m.Index(offset); ok {
			leaders.Insert(i)
		}
	}
	leaders.Insert(0)
	for i, ins := range m.Instructions {
		for _, t := range ins.Targets {
			mark(t)
		}
		if ins.Op.Transfers() && i+1 < len(m.Instructions) {
			leaders.Insert(i + 1)
		}
	}
	for _, h := range m.Handlers {
		mark(h.Start)
		mark(h.End)
		mark(h.Handler)
	}
	return &leaders
}

func (g *Graph) blockStarting(offset int) *Block {
	i, _ := g.Method.Index(offset)
	return g.Blocks[g.blockOf[i]]
}

func (g *Graph) addEdge(from *Block, e Edge) {
	from.Succs = append(from.Succs, e)
	to := g.Blocks[e.To]
	if !slices.Contains(to.Preds, from.ID) {
		to.Preds = append(to.Preds, from.ID)
	}
}

func (g *Graph) link(b *Block) {
	last := b.Last()
	next := func() {
		if b.ID+1 < len(g.Blocks) {
			g.addEdge(b, Edge{To: b.ID + 1, Kind: Fallthrough})
		}
	}
	switch last.Op.Category() {
	case ir.CatBranch:
		g.addEdge(b, Edge{To: g.blockStarting(last.Targets[0]).ID, Kind: Branch, Taken: true})
		next()
	case ir.CatGoto:
		g.addEdge(b, Edge{To: g.blockStarting(last.Targets[0]).ID, Kind: Goto})
	case ir.CatJsr:
		// ret ends its path, so the fallthrough stands in for the return
		// from the subroutine.
		g.addEdge(b, Edge{To: g.blockStarting(last.Targets[0]).ID, Kind: Goto})
		next()
	case ir.CatSwitch:
		seen := make(map[int]bool)
		for _, t := range last.Targets {
			id := g.blockStarting(t).ID
			if !seen[id] {
				seen[id] = true
				g.addEdge(b, Edge{To: id, Kind: Switch})
			}
		}
	case ir.CatReturn, ir.CatThrow, ir.CatRet:
	default:
		next()
	}

	for i, h := range g.Method.Handlers {
		if !h.Covers(b.Start) {
			continue
		}
		g.addEdge(b, Edge{
			To:        g.blockStarting(h.Handler).ID,
			Kind:      Exception,
			Handler:   i,
			CatchType: h.CatchType,
		})
		if h.IsCatchAll() {
			break
		}
	}
}

// markReachable flags blocks reachable from the entry and records their
// reverse postorder.
func (g *Graph) markReachable() {
	var post []int
	var visit func(id int)
	visit = func(id int) {
		b := g.Blocks[id]
		b.Reachable = true
		for _, e := range b.Succs {
			if !g.Blocks[e.To].Reachable {
				visit(e.To)
			}
		}
		post = append(post, id)
	}
	visit(0)
	slices.Reverse(post)
	g.Order = post
}

func (g *Graph) assignOwners() {
	entries := make([]int, 0, len(g.Method.Handlers))
	for _, h := range g.Method.Handlers {
		if !slices.Contains(entries, h.Handler) {
			entries = append(entries, h.Handler)
		}
	}
	slices.Sort(entries)
	for _, entry := range entries {
		var seen intsets.Sparse
		work := []int{g.blockStarting(entry).ID}
		for len(work) > 0 {
			id := work[len(work)-1]
			work = work[:len(work)-1]
			if !seen.Insert(id) {
				continue
			}
			b := g.Blocks[id]
			b.Owners = append(b.Owners, entry)
			for _, e := range b.Succs {
				if e.Kind != Exception {
					work = append(work, e.To)
				}
			}
		}
	}
}

// BlockAt returns the block containing the instruction at offset.
func (g *Graph) BlockAt(offset int) (*Block, bool) {
	i, ok := g.Method.Index(offset)
	if !ok {
		return nil, false
	}
	return g.Blocks[g.blockOf[i]], true
}

// FinallyHandlers returns the sorted entry offsets of handlers without a
// catch type, the shape compilers use for finally blocks.
func (g *Graph) FinallyHandlers() []int {
	var out []int
	for _, h := range g.Method.Handlers {
		if h.CatchType == "" && !slices.Contains(out, h.Handler) {
			out = append(out, h.Handler)
		}
	}
	slices.Sort(out)
	return out
}

// HasLoop reports whether any reachable edge goes back to a block that
// precedes its source in reverse postorder.
func (g *Graph) HasLoop() bool {
	pos := make([]int, len(g.Blocks))
	for i := range pos {
		pos[i] = -1
	}
	for i, id := range g.Order {
		pos[id] = i
	}
	for _, id := range g.Order {
		for _, e := range g.Blocks[id].Succs {
			if pos[e.To] <= pos[id] {
				return true
			}
		}
	}
	return false
}
