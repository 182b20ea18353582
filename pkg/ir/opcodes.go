package ir

import "fmt"

// Opcode is a JVM instruction opcode.
type Opcode uint8

// Category groups opcodes by their effect on the abstract machine.
type Category uint8

// Opcode categories.
const (
	CatInvalid Category = iota
	CatNop
	CatConst
	CatLoad
	CatStore
	CatArrayLoad
	CatArrayStore
	CatStack
	CatArith
	CatIinc
	CatConvert
	CatCompare
	CatBranch
	CatGoto
	CatJsr
	CatRet
	CatSwitch
	CatReturn
	CatFieldGet
	CatFieldPut
	CatInvoke
	CatNew
	CatNewArray
	CatArrayLength
	CatThrow
	CatTypeCheck
	CatMonitor
)

type opInfo struct {
	name string
	cat  Category
}

func (op Opcode) String() string {
	if name := opTable[op].name; name != "" {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(op))
}

// Category returns the opcode's category, CatInvalid for undefined opcodes.
func (op Opcode) Category() Category {
	return opTable[op].cat
}

// Valid reports whether op is a defined JVM opcode.
func (op Opcode) Valid() bool {
	return opTable[op].name != ""
}

// IsReturn reports whether op is one of the return instructions.
func (op Opcode) IsReturn() bool {
	return op.Category() == CatReturn
}

// EndsBlock reports whether control never falls through to the next
// instruction.
func (op Opcode) EndsBlock() bool {
	switch op.Category() {
	case CatGoto, CatSwitch, CatReturn, CatThrow, CatRet:
		return true
	}
	return false
}

// Transfers reports whether op may transfer control somewhere other than the
// next instruction.
func (op Opcode) Transfers() bool {
	switch op.Category() {
	case CatBranch, CatGoto, CatJsr, CatRet, CatSwitch, CatReturn, CatThrow:
		return true
	}
	return false
}
