package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/715d/classflow/pkg/classfile"
)

// Instruction is one decoded bytecode instruction with its operands resolved.
type Instruction struct {
	Offset int
	Op     Opcode
	Length int

	// Local is the slot of a load, store, iinc or ret, implicit forms
	// included.
	Local int

	// Int holds the immediate of bipush, sipush, iconst_<n>, the iinc
	// increment, the newarray element type or the multianewarray dimensions.
	Int int32

	Const   *classfile.Constant
	Ref     *classfile.MemberRef
	Class   string
	Dynamic *Dynamic

	// Targets are absolute branch targets. For switches the default target
	// comes first and the remaining entries line up with Keys.
	Targets []int
	Keys    []int32
}

// Dynamic is a resolved invokedynamic call site.
type Dynamic struct {
	Name       string
	Descriptor string
	Bootstrap  classfile.BootstrapMethod
}

func (ins *Instruction) String() string {
	switch {
	case ins.Ref != nil:
		return fmt.Sprintf("%d: %s %s", ins.Offset, ins.Op, ins.Ref)
	case ins.Class != "":
		return fmt.Sprintf("%d: %s %s", ins.Offset, ins.Op, ins.Class)
	case len(ins.Targets) > 0:
		return fmt.Sprintf("%d: %s %v", ins.Offset, ins.Op, ins.Targets)
	}
	return fmt.Sprintf("%d: %s", ins.Offset, ins.Op)
}

// Next returns the offset of the following instruction.
func (ins *Instruction) Next() int {
	return ins.Offset + ins.Length
}

// IsStatic reports whether an invoke instruction has no receiver.
func (ins *Instruction) IsStatic() bool {
	return ins.Op == OpInvokestatic || ins.Op == OpInvokedynamic
}

// Decode decodes a Code attribute's bytecode. Failures carry the file offset
// of the offending instruction.
func Decode(code *classfile.Code, pool *classfile.ConstantPool, bootstrap []classfile.BootstrapMethod) ([]Instruction, error) {
	d := decoder{code: code.Bytecode, pool: pool, bootstrap: bootstrap}
	var out []Instruction
	starts := make(map[int]bool)
	for d.pos < len(d.code) {
		ins, err := d.next()
		if err != nil {
			return nil, &classfile.MalformedClassError{Reason: err.Error(), Offset: code.Offset + d.pos}
		}
		starts[ins.Offset] = true
		out = append(out, ins)
	}
	for _, ins := range out {
		for _, t := range ins.Targets {
			if !starts[t] {
				return nil, &classfile.MalformedClassError{
					Reason: fmt.Sprintf("%s at %d jumps to %d, not an instruction boundary", ins.Op, ins.Offset, t),
					Offset: code.Offset + ins.Offset,
				}
			}
		}
	}
	return out, nil
}

type decoder struct {
	code      []byte
	pos       int
	pool      *classfile.ConstantPool
	bootstrap []classfile.BootstrapMethod
}

func (d *decoder) u1(at int) (int, error) {
	if at >= len(d.code) {
		return 0, fmt.Errorf("truncated instruction")
	}
	return int(d.code[at]), nil
}

func (d *decoder) u2(at int) (int, error) {
	if at+2 > len(d.code) {
		return 0, fmt.Errorf("truncated instruction")
	}
	return int(binary.BigEndian.Uint16(d.code[at:])), nil
}

func (d *decoder) s4(at int) (int32, error) {
	if at+4 > len(d.code) {
		return 0, fmt.Errorf("truncated instruction")
	}
	return int32(binary.BigEndian.Uint32(d.code[at:])), nil
}

func (d *decoder) next() (Instruction, error) {
	ins := Instruction{Offset: d.pos, Op: Opcode(d.code[d.pos]), Length: 1, Local: -1}
	op := ins.Op
	if !op.Valid() {
		return ins, fmt.Errorf("invalid opcode 0x%02x", uint8(op))
	}
	var err error
	switch {
	case op >= OpIconstM1 && op <= OpIconst5:
		ins.Int = int32(op) - int32(OpIconst0)
	case op == OpBipush:
		var v int
		v, err = d.u1(d.pos + 1)
		ins.Int, ins.Length = int32(int8(v)), 2
	case op == OpSipush:
		var v int
		v, err = d.u2(d.pos + 1)
		ins.Int, ins.Length = int32(int16(v)), 3
	case op == OpLdc:
		var idx int
		if idx, err = d.u1(d.pos + 1); err == nil {
			err = d.loadable(&ins, idx)
		}
		ins.Length = 2
	case op == OpLdcW || op == OpLdc2W:
		var idx int
		if idx, err = d.u2(d.pos + 1); err == nil {
			err = d.loadable(&ins, idx)
		}
		ins.Length = 3
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		var v int
		v, err = d.u1(d.pos + 1)
		ins.Local, ins.Length = v, 2
	case op >= OpIload0 && op <= OpAload3:
		ins.Local = int(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		ins.Local = int(op-OpIstore0) % 4
	case op == OpIinc:
		var slot, delta int
		if slot, err = d.u1(d.pos + 1); err == nil {
			delta, err = d.u1(d.pos + 2)
		}
		ins.Local, ins.Int, ins.Length = slot, int32(int8(delta)), 3
	case op.Category() == CatBranch, op == OpGoto, op == OpJsr:
		var v int
		v, err = d.u2(d.pos + 1)
		ins.Targets, ins.Length = []int{d.pos + int(int16(v))}, 3
	case op == OpGotoW || op == OpJsrW:
		var v int32
		v, err = d.s4(d.pos + 1)
		ins.Targets, ins.Length = []int{d.pos + int(v)}, 5
	case op == OpTableswitch || op == OpLookupswitch:
		err = d.switchOperands(&ins)
	case op.Category() == CatFieldGet, op.Category() == CatFieldPut,
		op == OpInvokevirtual, op == OpInvokespecial, op == OpInvokestatic:
		err = d.member(&ins)
		ins.Length = 3
	case op == OpInvokeinterface:
		err = d.member(&ins)
		ins.Length = 5
		if err == nil && d.pos+5 > len(d.code) {
			err = fmt.Errorf("truncated instruction")
		}
	case op == OpInvokedynamic:
		err = d.invokeDynamic(&ins)
		ins.Length = 5
	case op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		err = d.class(&ins)
		ins.Length = 3
	case op == OpMultianewarray:
		if err = d.class(&ins); err == nil {
			var dims int
			dims, err = d.u1(d.pos + 3)
			ins.Int = int32(dims)
		}
		ins.Length = 4
	case op == OpNewarray:
		var v int
		v, err = d.u1(d.pos + 1)
		ins.Int, ins.Length = int32(v), 2
	case op == OpWide:
		err = d.wide(&ins)
	}
	if err != nil {
		return ins, err
	}
	if d.pos+ins.Length > len(d.code) {
		return ins, fmt.Errorf("truncated instruction")
	}
	d.pos += ins.Length
	return ins, nil
}

func (d *decoder) loadable(ins *Instruction, idx int) error {
	c, err := d.pool.Loadable(uint16(idx))
	if err != nil {
		return err
	}
	ins.Const = &c
	return nil
}

func (d *decoder) member(ins *Instruction) error {
	idx, err := d.u2(d.pos + 1)
	if err != nil {
		return err
	}
	ref, err := d.pool.Member(uint16(idx))
	if err != nil {
		return err
	}
	ins.Ref = &ref
	return nil
}

func (d *decoder) class(ins *Instruction) error {
	idx, err := d.u2(d.pos + 1)
	if err != nil {
		return err
	}
	ins.Class, err = d.pool.ClassName(uint16(idx))
	return err
}

func (d *decoder) invokeDynamic(ins *Instruction) error {
	idx, err := d.u2(d.pos + 1)
	if err != nil {
		return err
	}
	c, err := d.pool.InvokeDynamic(uint16(idx))
	if err != nil {
		return err
	}
	if int(c.Bootstrap) >= len(d.bootstrap) {
		return fmt.Errorf("invokedynamic bootstrap index %d out of range", c.Bootstrap)
	}
	ins.Dynamic = &Dynamic{Name: c.Name, Descriptor: c.Descriptor, Bootstrap: d.bootstrap[c.Bootstrap]}
	return nil
}

func (d *decoder) wide(ins *Instruction) error {
	op, err := d.u1(d.pos + 1)
	if err != nil {
		return err
	}
	slot, err := d.u2(d.pos + 2)
	if err != nil {
		return err
	}
	ins.Op, ins.Local, ins.Length = Opcode(op), slot, 4
	switch ins.Op {
	case OpIinc:
		delta, err := d.u2(d.pos + 4)
		if err != nil {
			return err
		}
		ins.Int, ins.Length = int32(int16(delta)), 6
	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
	default:
		return fmt.Errorf("wide cannot modify %s", ins.Op)
	}
	return nil
}

func (d *decoder) switchOperands(ins *Instruction) error {
	base := d.pos + 1 + (4-((d.pos+1)%4))%4
	def, err := d.s4(base)
	if err != nil {
		return err
	}
	ins.Targets = []int{d.pos + int(def)}
	if ins.Op == OpTableswitch {
		low, err := d.s4(base + 4)
		if err != nil {
			return err
		}
		high, err := d.s4(base + 8)
		if err != nil {
			return err
		}
		if high < low {
			return fmt.Errorf("tableswitch high %d below low %d", high, low)
		}
		n := int(high) - int(low) + 1
		if base+12+4*n > len(d.code) {
			return fmt.Errorf("truncated instruction")
		}
		for i := 0; i < n; i++ {
			off, _ := d.s4(base + 12 + 4*i)
			ins.Keys = append(ins.Keys, low+int32(i))
			ins.Targets = append(ins.Targets, d.pos+int(off))
		}
		ins.Length = base + 12 + 4*n - d.pos
		return nil
	}
	npairs, err := d.s4(base + 4)
	if err != nil {
		return err
	}
	if npairs < 0 || base+8+8*int(npairs) > len(d.code) {
		return fmt.Errorf("bad lookupswitch pair count %d", npairs)
	}
	for i := 0; i < int(npairs); i++ {
		key, _ := d.s4(base + 8 + 8*i)
		off, _ := d.s4(base + 12 + 8*i)
		ins.Keys = append(ins.Keys, key)
		ins.Targets = append(ins.Targets, d.pos+int(off))
	}
	ins.Length = base + 8 + 8*int(npairs) - d.pos
	return nil
}
