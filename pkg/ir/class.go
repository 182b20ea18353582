package ir

import (
	"sort"
	"strings"

	"github.com/715d/classflow/pkg/classfile"
)

// Class is the analysis view of a class file. It is immutable once built.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Access     uint16
	Signature  string
	SourceFile string

	TypeParams []TypeParam
	// SuperType and InterfaceTypes carry type arguments from the class
	// signature, or erased types when there is none.
	SuperType      *TypeUse
	InterfaceTypes []TypeUse

	Fields  []*Field
	Methods []*Method

	NullMarked  bool
	Annotations []classfile.Annotation

	// Warnings are recoverable problems, such as a signature that failed to
	// parse and was replaced by its descriptor.
	Warnings []error
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool {
	return c.Access&classfile.AccInterface != 0
}

// Package returns the internal package name, "" for the default package.
func (c *Class) Package() string {
	return PackageOf(c.Name)
}

// PackageOf returns the package part of an internal class name.
func PackageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// Method returns the method with the given name and descriptor.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// Field returns the named field.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field is a field with its annotated type.
type Field struct {
	Owner       string
	Name        string
	Descriptor  string
	Access      uint16
	Type        TypeUse
	Annotations []classfile.Annotation
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool {
	return f.Access&classfile.AccStatic != 0
}

// ExceptionHandler is one exception table row. CatchType is empty for a
// handler that catches everything.
type ExceptionHandler struct {
	Start     int
	End       int
	Handler   int
	CatchType string
}

// IsCatchAll reports whether the handler catches every throwable.
func (h ExceptionHandler) IsCatchAll() bool {
	return h.CatchType == "" || h.CatchType == "java/lang/Throwable"
}

// Covers reports whether offset lies in the protected range.
func (h ExceptionHandler) Covers(offset int) bool {
	return offset >= h.Start && offset < h.End
}

// Method is a method with decoded code and annotated signature types.
type Method struct {
	Owner      string
	Name       string
	Descriptor string
	Access     uint16
	Signature  string

	TypeParams []TypeParam
	Params     []TypeUse
	Return     TypeUse
	Exceptions []string

	// HasCode is false for abstract and native methods.
	HasCode      bool
	MaxStack     int
	MaxLocals    int
	Instructions []Instruction
	Handlers     []ExceptionHandler
	LineNumbers  []classfile.LineNumber

	NullMarked           bool
	Annotations          []classfile.Annotation
	ParameterAnnotations [][]classfile.Annotation
}

func (m *Method) String() string {
	return m.Owner + "." + m.Name + m.Descriptor
}

// IsStatic reports whether the method is static.
func (m *Method) IsStatic() bool {
	return m.Access&classfile.AccStatic != 0
}

// Is reports whether all the given access flags are set.
func (m *Method) Is(flags uint16) bool {
	return m.Access&flags == flags
}

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool {
	return m.Name == "<init>"
}

// Index returns the position of the instruction at offset.
func (m *Method) Index(offset int) (int, bool) {
	i := sort.Search(len(m.Instructions), func(i int) bool {
		return m.Instructions[i].Offset >= offset
	})
	if i < len(m.Instructions) && m.Instructions[i].Offset == offset {
		return i, true
	}
	return 0, false
}

// InstructionAt returns the instruction starting at offset.
func (m *Method) InstructionAt(offset int) (*Instruction, bool) {
	i, ok := m.Index(offset)
	if !ok {
		return nil, false
	}
	return &m.Instructions[i], true
}

// LineForOffset returns the source line of offset, if the class has a line
// number table.
func (m *Method) LineForOffset(offset int) (int, bool) {
	code := classfile.Code{LineNumbers: m.LineNumbers}
	return code.LineForOffset(offset)
}

// CodeEnd returns the offset just past the last instruction.
func (m *Method) CodeEnd() int {
	if len(m.Instructions) == 0 {
		return 0
	}
	return m.Instructions[len(m.Instructions)-1].Next()
}
