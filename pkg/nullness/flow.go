package nullness

import (
	"fmt"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/ir"
)

// Issue is a nullness problem at one instruction, or at the declaration
// when Offset is -1.
type Issue struct {
	Offset  int
	Message string
}

// Result is the nullness fixed point of one method and the issues found
// along it.
type Result struct {
	Flow   *dataflow.Result[Value]
	Issues []Issue
}

// StateAt returns the abstract state ahead of the instruction at offset.
func (r *Result) StateAt(offset int) (*dataflow.Frame[Value], bool) {
	return r.Flow.StateAt(offset)
}

type analysis struct {
	Domain
	res   *Resolver
	class *ir.Class
}

// Analyze runs the nullness flow over one method and reports nullable
// receivers, nullable field and array dereferences, and null returned where
// the method promises @NonNull.
func Analyze(res *Resolver, c *ir.Class, g *cfg.Graph, limits dataflow.Limits) (*Result, error) {
	a := &analysis{res: res, class: c}
	flow, err := dataflow.Solve[Value](g, a, limits)
	if err != nil {
		return nil, err
	}
	r := &Result{Flow: flow}
	m := g.Method
	flow.Replay(func(_ *cfg.Block, ins *ir.Instruction, before *dataflow.Frame[Value]) {
		if msg := check(c, m, ins, before); msg != "" {
			r.Issues = append(r.Issues, Issue{Offset: ins.Offset, Message: msg})
		}
	})
	return r, nil
}

func check(c *ir.Class, m *ir.Method, ins *ir.Instruction, f *dataflow.Frame[Value]) string {
	nullable := func(depth int) bool {
		return f.Peek(depth).Nullness == ir.Nullable
	}
	switch ins.Op.Category() {
	case ir.CatInvoke:
		if ins.IsStatic() || ins.Ref == nil {
			return ""
		}
		md, err := ir.ParseMethodDescriptor(ins.Ref.Descriptor)
		if err != nil || !nullable(len(md.Params)) {
			return ""
		}
		return fmt.Sprintf("Nullness issue: possible null receiver in call to %s", ins.Ref)
	case ir.CatFieldGet, ir.CatFieldPut:
		depth := -1
		switch ins.Op {
		case ir.OpGetfield:
			depth = 0
		case ir.OpPutfield:
			depth = 1
		}
		if depth < 0 || ins.Ref == nil || !nullable(depth) {
			return ""
		}
		return fmt.Sprintf("Nullness issue: possible null dereference of field %s.%s", ins.Ref.Owner, ins.Ref.Name)
	case ir.CatArrayLoad, ir.CatArrayStore, ir.CatArrayLength:
		depth := 0
		switch ins.Op.Category() {
		case ir.CatArrayLoad:
			depth = 1
		case ir.CatArrayStore:
			depth = 2
		}
		if nullable(depth) {
			return "Nullness issue: possible null array access"
		}
	case ir.CatReturn:
		if ins.Op == ir.OpAreturn && m.Return.Top() == ir.NonNull && nullable(0) {
			return fmt.Sprintf("Nullness issue: %s.%s%s returns null but is @NonNull", c.Name, m.Name, m.Descriptor)
		}
	}
	return ""
}

// thisType is the type of the receiver inside its own class: the class
// applied to its own type variables.
func thisType(c *ir.Class) *ir.TypeUse {
	t := &ir.TypeUse{Kind: ir.KindClass, Nullness: ir.NonNull, Name: c.Name}
	for _, p := range c.TypeParams {
		t.Args = append(t.Args, ir.TypeUse{Kind: ir.KindTypeVar, Name: p.Name})
	}
	return t
}

func (a *analysis) Entry(m *ir.Method, f *dataflow.Frame[Value]) {
	if !m.IsStatic() {
		f.Store(0, nonNull(thisType(a.class)), false)
	}
	for i, slot := range dataflow.ParamSlots(m) {
		p := m.Params[i].Clone()
		f.Store(slot, Value{Nullness: p.Top(), Type: &p, Local: -1}, p.Wide())
	}
}

func (a *analysis) Produce(ins *ir.Instruction, args []Value) (Value, bool) {
	switch ins.Op.Category() {
	case ir.CatConst:
		switch {
		case ins.Op == ir.OpAconstNull:
			return Value{Nullness: ir.Nullable, Local: -1, NullLiteral: true}, true
		case ins.Const == nil:
			return Unknown, false
		}
		switch ins.Const.Kind {
		case classfile.ConstantString:
			return nonNull(&ir.TypeUse{Kind: ir.KindClass, Name: "java/lang/String", Nullness: ir.NonNull}), true
		case classfile.ConstantClass, classfile.ConstantMethodType, classfile.ConstantMethodHandle:
			return nonNull(nil), true
		}
	case ir.CatLoad:
		if ins.Op == ir.OpAload || (ins.Op >= ir.OpAload0 && ins.Op <= ir.OpAload3) {
			v := args[0]
			v.Local = ins.Local
			return v, true
		}
	case ir.CatNew:
		return nonNull(&ir.TypeUse{Kind: ir.KindClass, Name: ins.Class, Nullness: ir.NonNull}), true
	case ir.CatNewArray:
		return nonNull(nil), true
	case ir.CatTypeCheck:
		if ins.Op == ir.OpCheckcast {
			v := args[0]
			v.Local = -1
			return v, true
		}
	case ir.CatFieldGet:
		if ins.Ref == nil {
			return Unknown, false
		}
		var recv Value
		if len(args) > 0 {
			recv = args[0]
		}
		return a.res.FieldValue(ins.Op, *ins.Ref, recv), true
	case ir.CatInvoke:
		if ins.Ref == nil {
			return Unknown, false
		}
		var recv Value
		if !ins.IsStatic() && len(args) > 0 {
			recv = args[0]
		}
		return a.res.ReturnValue(ins.Op, *ins.Ref, recv), true
	}
	return Unknown, false
}

func (a *analysis) Caught(h ir.ExceptionHandler) Value {
	name := h.CatchType
	if name == "" {
		name = "java/lang/Throwable"
	}
	return nonNull(&ir.TypeUse{Kind: ir.KindClass, Name: name, Nullness: ir.NonNull})
}

// Refine applies a null check to the local it tested: the branch on which
// the value is null gets Nullable, the other NonNull.
func (a *analysis) Refine(ins *ir.Instruction, before *dataflow.Frame[Value], taken bool, after *dataflow.Frame[Value]) {
	var local int
	var nullWhenTaken bool
	switch ins.Op {
	case ir.OpIfnull, ir.OpIfnonnull:
		local = before.Peek(0).Local
		nullWhenTaken = ins.Op == ir.OpIfnull
	case ir.OpIfAcmpeq, ir.OpIfAcmpne:
		right, left := before.Peek(0), before.Peek(1)
		switch {
		case right.NullLiteral && left.Local >= 0:
			local = left.Local
		case left.NullLiteral && right.Local >= 0:
			local = right.Local
		default:
			return
		}
		nullWhenTaken = ins.Op == ir.OpIfAcmpeq
	default:
		return
	}
	if local < 0 {
		return
	}
	v := after.Load(local)
	if taken == nullWhenTaken {
		v.Nullness = ir.Nullable
	} else {
		v.Nullness = ir.NonNull
	}
	after.Store(local, v, false)
}
