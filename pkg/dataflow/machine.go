package dataflow

import (
	"github.com/715d/classflow/pkg/ir"
)

// Analysis is the capability set a client supplies to run the machine over
// its own domain.
type Analysis[V any] interface {
	Domain[V]

	// Entry seeds the method's entry frame, typically storing the receiver
	// and parameters into their local slots.
	Entry(m *ir.Method, f *Frame[V])

	// Produce returns the value an instruction pushes. args are the popped
	// operands deepest first; for loads and iinc it holds the local's current
	// value. Returning false keeps the machine's default, which is the loaded
	// or cast value for loads and checkcast and Unknown for everything else.
	Produce(ins *ir.Instruction, args []V) (V, bool)

	// Caught returns the exception value on the stack at a handler entry.
	Caught(h ir.ExceptionHandler) V
}

// Refiner is implemented by analyses that sharpen values along the two edges
// of a conditional branch. before is the frame ahead of the branch, after is
// the edge's frame and may be modified.
type Refiner[V any] interface {
	Refine(ins *ir.Instruction, before *Frame[V], taken bool, after *Frame[V])
}

// Effector is implemented by analyses whose calls change values already held
// in the frame, such as a constructor initializing every copy of its
// receiver. Effect runs after the operands are popped and before the result
// is pushed.
type Effector[V any] interface {
	Effect(ins *ir.Instruction, args []V, f *Frame[V])
}

// Machine applies instruction effects to frames.
type Machine[V any] struct {
	a Analysis[V]
}

// NewMachine returns a machine driven by a.
func NewMachine[V any](a Analysis[V]) *Machine[V] {
	return &Machine[V]{a: a}
}

func (mc *Machine[V]) produce(f *Frame[V], ins *ir.Instruction, args []V, wide bool, fallback V) {
	v, ok := mc.a.Produce(ins, args)
	if !ok {
		v = fallback
	}
	if wide {
		f.PushWide(v)
	} else {
		f.Push(v)
	}
}

// Step applies ins to f.
func (mc *Machine[V]) Step(ins *ir.Instruction, f *Frame[V]) {
	unknown := mc.a.Unknown()
	op := ins.Op
	switch op.Category() {
	case ir.CatNop, ir.CatGoto, ir.CatRet:
	case ir.CatConst:
		wide := op == ir.OpLdc2W || op == ir.OpLconst0 || op == ir.OpLconst1 ||
			op == ir.OpDconst0 || op == ir.OpDconst1
		mc.produce(f, ins, nil, wide, unknown)
	case ir.CatLoad:
		v := f.Load(ins.Local)
		mc.produce(f, ins, []V{v}, isWide(loadType(op)), v)
	case ir.CatStore:
		f.Store(ins.Local, f.Pop(), isWide(storeType(op)))
	case ir.CatArrayLoad:
		args := f.PopN(2)
		mc.produce(f, ins, args, isWide(arrayType(op-ir.OpIaload)), unknown)
	case ir.CatArrayStore:
		f.PopN(3)
	case ir.CatStack:
		mc.stack(op, f)
	case ir.CatArith:
		n := 2
		if op >= ir.OpIneg && op <= ir.OpDneg {
			n = 1
		}
		args := f.PopN(n)
		mc.produce(f, ins, args, isWide(arithType(op)), unknown)
	case ir.CatIinc:
		v, ok := mc.a.Produce(ins, []V{f.Load(ins.Local)})
		if !ok {
			v = unknown
		}
		f.Store(ins.Local, v, false)
	case ir.CatConvert:
		args := f.PopN(1)
		wide := op == ir.OpI2l || op == ir.OpI2d || op == ir.OpL2d ||
			op == ir.OpF2l || op == ir.OpF2d || op == ir.OpD2l
		mc.produce(f, ins, args, wide, unknown)
	case ir.CatCompare:
		mc.produce(f, ins, f.PopN(2), false, unknown)
	case ir.CatBranch:
		switch op {
		case ir.OpIfIcmpeq, ir.OpIfIcmpne, ir.OpIfIcmplt, ir.OpIfIcmpge,
			ir.OpIfIcmpgt, ir.OpIfIcmple, ir.OpIfAcmpeq, ir.OpIfAcmpne:
			f.PopN(2)
		default:
			f.Pop()
		}
	case ir.CatJsr:
		f.Push(unknown)
	case ir.CatSwitch, ir.CatMonitor:
		f.Pop()
	case ir.CatReturn:
		if op != ir.OpReturn {
			f.Pop()
		}
	case ir.CatThrow:
		f.Pop()
	case ir.CatFieldGet:
		var args []V
		if op == ir.OpGetfield {
			args = f.PopN(1)
		}
		wide := false
		if ins.Ref != nil && ins.Ref.Descriptor != "" {
			wide = isWide(ins.Ref.Descriptor[0])
		}
		mc.produce(f, ins, args, wide, unknown)
	case ir.CatFieldPut:
		f.Pop()
		if op == ir.OpPutfield {
			f.Pop()
		}
	case ir.CatInvoke:
		mc.invoke(ins, f)
	case ir.CatNew:
		mc.produce(f, ins, nil, false, unknown)
	case ir.CatNewArray:
		n := 1
		if op == ir.OpMultianewarray {
			n = int(ins.Int)
		}
		mc.produce(f, ins, f.PopN(n), false, unknown)
	case ir.CatArrayLength:
		mc.produce(f, ins, f.PopN(1), false, unknown)
	case ir.CatTypeCheck:
		v := f.Pop()
		if op == ir.OpCheckcast {
			mc.produce(f, ins, []V{v}, false, v)
		} else {
			mc.produce(f, ins, []V{v}, false, unknown)
		}
	default:
		f.ClearStack()
	}
}

func (mc *Machine[V]) invoke(ins *ir.Instruction, f *Frame[V]) {
	var desc string
	switch {
	case ins.Dynamic != nil:
		desc = ins.Dynamic.Descriptor
	case ins.Ref != nil:
		desc = ins.Ref.Descriptor
	}
	md, err := ir.ParseMethodDescriptor(desc)
	if err != nil {
		f.ClearStack()
		f.Push(mc.a.Unknown())
		return
	}
	n := len(md.Params)
	if !ins.IsStatic() {
		n++
	}
	args := f.PopN(n)
	if e, ok := mc.a.(Effector[V]); ok {
		e.Effect(ins, args, f)
	}
	if md.Return.Kind == ir.KindVoid {
		// Void calls still reach Produce so clients see them.
		mc.a.Produce(ins, args)
		return
	}
	mc.produce(f, ins, args, md.Return.Wide(), mc.a.Unknown())
}

// stack applies the pop, dup and swap family. Operands are counted in stack
// words so category 2 entries take the forms the JVM allows for them.
func (mc *Machine[V]) stack(op ir.Opcode, f *Frame[V]) {
	switch op {
	case ir.OpPop:
		f.popWords(1)
	case ir.OpPop2:
		f.popWords(2)
	case ir.OpDup:
		a := f.popWords(1)
		f.pushAll(a, a)
	case ir.OpDupX1:
		a := f.popWords(1)
		b := f.popWords(1)
		f.pushAll(a, b, a)
	case ir.OpDupX2:
		a := f.popWords(1)
		b := f.popWords(2)
		f.pushAll(a, b, a)
	case ir.OpDup2:
		a := f.popWords(2)
		f.pushAll(a, a)
	case ir.OpDup2X1:
		a := f.popWords(2)
		b := f.popWords(1)
		f.pushAll(a, b, a)
	case ir.OpDup2X2:
		a := f.popWords(2)
		b := f.popWords(2)
		f.pushAll(a, b, a)
	case ir.OpSwap:
		a := f.popWords(1)
		b := f.popWords(1)
		f.pushAll(a, b)
	}
}

const typeLetters = "IJFDA"

func loadType(op ir.Opcode) byte {
	if op <= ir.OpAload {
		return typeLetters[op-ir.OpIload]
	}
	return typeLetters[(op-ir.OpIload0)/4]
}

func storeType(op ir.Opcode) byte {
	if op <= ir.OpAstore {
		return typeLetters[op-ir.OpIstore]
	}
	return typeLetters[(op-ir.OpIstore0)/4]
}

func arrayType(i ir.Opcode) byte {
	return "IJFDABCS"[i]
}

func arithType(op ir.Opcode) byte {
	switch {
	case op >= ir.OpIshl && op <= ir.OpLushr:
		return "IJ"[(op-ir.OpIshl)%2]
	case op >= ir.OpIand:
		return "IJ"[(op-ir.OpIand)%2]
	}
	return "IJFD"[(op-ir.OpIadd)%4]
}

func isWide(t byte) bool {
	return t == 'J' || t == 'D'
}
