package cfg_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

type handler struct {
	start, end, handler string
	catchType           string
}

// method assembles src into a static method and builds its IR.
func method(t *testing.T, src string, handlers ...handler) (*ir.Method, map[string]int) {
	t.Helper()
	b := classgen.New("p/C", "java/lang/Object")
	code, labels := classgen.MustAssemble(b, src)
	c := &classgen.Code{MaxStack: 4, MaxLocals: 4, Bytecode: code}
	for _, h := range handlers {
		c.Handlers = append(c.Handlers, classgen.Handler{
			Start: labels[h.start], End: labels[h.end], Handler: labels[h.handler], CatchType: h.catchType,
		})
	}
	b.AddMethod(classgen.Method{Access: classgen.Static, Name: "m", Descriptor: "(I)I", Code: c})
	cf, err := classfile.Parse(b.Bytes())
	require.NoError(t, err)
	cls, err := ir.Build(cf, ir.BuildOptions{})
	require.NoError(t, err)
	return cls.Methods[0], labels
}

func build(t *testing.T, m *ir.Method) *cfg.Graph {
	t.Helper()
	g, err := cfg.Build(m)
	require.NoError(t, err)
	requirePartition(t, g)
	return g
}

// requirePartition checks that every instruction belongs to exactly one
// block and that blocks tile the code in order.
func requirePartition(t *testing.T, g *cfg.Graph) {
	t.Helper()
	seen := make(map[int]int)
	next := 0
	for i, b := range g.Blocks {
		require.Equal(t, i, b.ID)
		require.Equal(t, next, b.Start)
		require.NotEmpty(t, b.Instructions)
		for _, ins := range b.Instructions {
			seen[ins.Offset]++
		}
		next = b.End
	}
	require.Equal(t, g.Method.CodeEnd(), next)
	require.Len(t, seen, len(g.Method.Instructions))
	for off, n := range seen {
		require.Equal(t, 1, n, "offset %d", off)
		b, ok := g.BlockAt(off)
		require.True(t, ok)
		require.True(t, off >= b.Start && off < b.End)
	}
}

func succs(b *cfg.Block) []int {
	var out []int
	for _, e := range b.Succs {
		out = append(out, e.To)
	}
	return out
}

func TestBuild_StraightLine(t *testing.T) {
	m, _ := method(t, `
		iload_0
		iconst_1
		iadd
		ireturn
	`)
	g := build(t, m)
	require.Len(t, g.Blocks, 1)
	require.Empty(t, g.Blocks[0].Succs)
	require.Equal(t, []int{0}, g.Order)
	require.False(t, g.HasLoop())
}

func TestBuild_IfElse(t *testing.T) {
	m, labels := method(t, `
		iload_0
		ifeq Lelse
		iconst_1
		istore_1
		goto Lend
	Lelse:
		iconst_2
		istore_1
	Lend:
		iload_1
		ireturn
	`)
	g := build(t, m)
	require.Len(t, g.Blocks, 4)

	entry := g.Blocks[0]
	require.Len(t, entry.Succs, 2)
	require.Equal(t, cfg.Branch, entry.Succs[0].Kind)
	require.True(t, entry.Succs[0].Taken)
	require.Equal(t, labels["Lelse"], g.Blocks[entry.Succs[0].To].Start)
	require.Equal(t, cfg.Fallthrough, entry.Succs[1].Kind)
	require.Equal(t, 1, entry.Succs[1].To)

	require.Equal(t, []int{3}, succs(g.Blocks[1]))
	require.Equal(t, cfg.Goto, g.Blocks[1].Succs[0].Kind)
	require.Equal(t, []int{3}, succs(g.Blocks[2]))
	require.ElementsMatch(t, []int{1, 2}, g.Blocks[3].Preds)
	require.Equal(t, 0, g.Order[0])
	require.Equal(t, 3, g.Order[len(g.Order)-1])
	require.False(t, g.HasLoop())
}

// TestBuild_BlockCount checks the leader count for code where every block
// after the entry is a branch target or a handler entry.
func TestBuild_BlockCount(t *testing.T) {
	m, _ := method(t, `
	Ltry:
		iload_0
		goto L2
	L1:
		iload_0
		ireturn
	L2:
		goto L1
	Lend:
	Lh:
		pop
		iconst_0
		ireturn
	`, handler{start: "Ltry", end: "Lend", handler: "Lh", catchType: "java/lang/RuntimeException"})
	g := build(t, m)

	targets := map[int]bool{}
	for _, ins := range m.Instructions {
		for _, tgt := range ins.Targets {
			targets[tgt] = true
		}
	}
	handlerEntries := 0
	for _, h := range m.Handlers {
		if !targets[h.Handler] {
			handlerEntries++
		}
	}
	require.Len(t, g.Blocks, len(targets)+1+handlerEntries)
	require.False(t, g.HasLoop())
}

func TestBuild_Loop(t *testing.T) {
	m, labels := method(t, `
		iconst_0
		istore_1
	Lhead:
		iload_1
		iload_0
		if_icmpge Lexit
		iinc 1 1
		goto Lhead
	Lexit:
		iload_1
		ireturn
	`)
	g := build(t, m)
	require.True(t, g.HasLoop())
	head, ok := g.BlockAt(labels["Lhead"])
	require.True(t, ok)
	require.Len(t, head.Preds, 2)
}

func TestBuild_ExceptionEdges(t *testing.T) {
	m, labels := method(t, `
	Ltry:
		iload_0
		iconst_1
		idiv
		ireturn
	Lend:
	Larith:
		pop
		iconst_0
		ireturn
	Lall:
		pop
		iconst_1
		ireturn
	Lshadowed:
		pop
		iconst_2
		ireturn
	`,
		handler{start: "Ltry", end: "Lend", handler: "Larith", catchType: "java/lang/ArithmeticException"},
		handler{start: "Ltry", end: "Lend", handler: "Lall"},
		handler{start: "Ltry", end: "Lend", handler: "Lshadowed", catchType: "java/lang/Exception"},
	)
	g := build(t, m)
	entry := g.Blocks[0]
	require.Len(t, entry.Succs, 2, "handlers after a catch-all are unreachable")
	require.Equal(t, cfg.Exception, entry.Succs[0].Kind)
	require.Equal(t, "java/lang/ArithmeticException", entry.Succs[0].CatchType)
	require.Equal(t, labels["Larith"], g.Blocks[entry.Succs[0].To].Start)
	require.Equal(t, 0, entry.Succs[0].Handler)
	require.Equal(t, "", entry.Succs[1].CatchType)
	require.Equal(t, 1, entry.Succs[1].Handler)

	shadowed, _ := g.BlockAt(labels["Lshadowed"])
	require.False(t, shadowed.Reachable)
	require.True(t, shadowed.HandlerEntry)
	arith, _ := g.BlockAt(labels["Larith"])
	require.True(t, arith.Reachable)
	require.Equal(t, []int{labels["Larith"]}, arith.Owners)
}

// TestBuild_FinallyOwnership covers a return inside a finally handler that
// is reachable from the protected range.
func TestBuild_FinallyOwnership(t *testing.T) {
	m, labels := method(t, `
	Ltry:
		iconst_1
		istore_1
	Lend:
		iconst_2
		ireturn
	Lfinally:
		astore_2
		iconst_2
		ireturn
	`, handler{start: "Ltry", end: "Lend", handler: "Lfinally"})
	g := build(t, m)
	require.Len(t, g.Blocks, 3)
	require.Equal(t, []int{labels["Lfinally"]}, g.FinallyHandlers())

	ret, ok := g.BlockAt(labels["Lfinally"] + 2)
	require.True(t, ok)
	require.True(t, ret.Reachable)
	require.True(t, ret.OwnedBy(labels["Lfinally"]))
	require.True(t, ret.Last().Op.IsReturn())

	normal, _ := g.BlockAt(labels["Lend"])
	require.Empty(t, normal.Owners)
}

func TestBuild_Unreachable(t *testing.T) {
	m, labels := method(t, `
		iconst_0
		ireturn
	Ldead:
		iconst_1
		ireturn
	`)
	g := build(t, m)
	require.Len(t, g.Blocks, 2)
	dead, _ := g.BlockAt(labels["Ldead"])
	require.False(t, dead.Reachable)
	require.Equal(t, []int{0}, g.Order)
}

func TestBuild_Switch(t *testing.T) {
	m, _ := method(t, `
		iload_0
		tableswitch 0 Ldef L0 L1 L0
	L0:
		iconst_0
		ireturn
	L1:
		iconst_1
		ireturn
	Ldef:
		iconst_m1
		ireturn
	`)
	g := build(t, m)
	require.Len(t, g.Blocks, 4)
	require.Equal(t, []int{3, 1, 2}, succs(g.Blocks[0]), "default first, duplicates once")
	for _, e := range g.Blocks[0].Succs {
		require.Equal(t, cfg.Switch, e.Kind)
	}
}

func TestBuild_InvalidExceptionTable(t *testing.T) {
	m, _ := method(t, `
		iconst_0
		ireturn
	`)
	end := m.CodeEnd()
	tests := []struct {
		name       string
		h          ir.ExceptionHandler
		wantReason string
	}{
		{name: "end past code", h: ir.ExceptionHandler{Start: 0, End: end + 4, Handler: 0}, wantReason: "range ends past the code"},
		{name: "handler past code", h: ir.ExceptionHandler{Start: 0, End: end, Handler: end}, wantReason: "handler past the code"},
		{name: "empty range", h: ir.ExceptionHandler{Start: 1, End: 1, Handler: 0}, wantReason: "empty range"},
		{name: "negative", h: ir.ExceptionHandler{Start: -1, End: 1, Handler: 0}, wantReason: "negative offset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *m
			bad.Handlers = []ir.ExceptionHandler{tt.h}
			_, err := cfg.Build(&bad)
			var iete *cfg.InvalidExceptionTableError
			require.True(t, errors.As(err, &iete), "got %v", err)
			require.Equal(t, tt.wantReason, iete.Reason)
			require.Equal(t, 0, iete.Index)
		})
	}
}

func TestToLattice(t *testing.T) {
	m, _ := method(t, `
		iload_0
		ifne Lnz
		iconst_0
		invokestatic p/C.f(I)I
		ireturn
	Lnz:
		iconst_1
		ireturn
	`)
	g := build(t, m)
	fn := g.ToLattice()
	require.Equal(t, "p/C.m(I)I", fn.Name)
	require.Len(t, fn.Blocks, 3)
	require.Equal(t, "T", fn.Blocks[0].Succs[0].Cond)
	require.Equal(t, "F", fn.Blocks[0].Succs[1].Cond)
	require.Len(t, fn.Blocks[1].Calls, 1)
	require.Equal(t, "p/C.f(I)I", fn.Blocks[1].Calls[0].Callee)
	require.True(t, fn.Blocks[2].Term)

	require.Contains(t, cfg.DOT([]*cfg.Graph{g}, "m"), "digraph")
}
