// Package classgen synthesizes class files for tests: a constant pool aware
// ClassBuilder and a small bytecode assembler.
package classgen

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Annotation descriptors used throughout the tests.
const (
	Nullable   = "Lorg/jspecify/annotations/Nullable;"
	NonNull    = "Lorg/jspecify/annotations/NonNull;"
	NullMarked = "Lorg/jspecify/annotations/NullMarked;"
)

// Access flags.
const (
	Public    uint16 = 0x0001
	Private   uint16 = 0x0002
	Protected uint16 = 0x0004
	Static    uint16 = 0x0008
	Final     uint16 = 0x0010
	Super     uint16 = 0x0020
	Bridge    uint16 = 0x0040
	Interface uint16 = 0x0200
	Abstract  uint16 = 0x0400
	Synthetic uint16 = 0x1000
)

// Type annotation targets.
const (
	TargetClassTypeParameterBound uint8 = 0x11
	TargetField                   uint8 = 0x13
	TargetReturn                  uint8 = 0x14
	TargetParameter               uint8 = 0x16
	TargetSupertype               uint8 = 0x10
)

// TypeAnnotation describes one type_annotation entry. Path uses the
// textual form of type paths: "[" array element, "." nested type,
// "*" wildcard bound and "N;" type argument N.
type TypeAnnotation struct {
	Target uint8
	Index  int
	Bound  int
	Path   string
	Type   string
}

// Handler is an exception table row. CatchType "" catches everything.
type Handler struct {
	Start, End, Handler int
	CatchType           string
}

// Line is a LineNumberTable row.
type Line struct {
	PC, Line int
}

// Code is a Code attribute.
type Code struct {
	MaxStack  int
	MaxLocals int
	Bytecode  []byte
	Handlers  []Handler
	Lines     []Line
}

// Method describes a method to add.
type Method struct {
	Access               uint16
	Name                 string
	Descriptor           string
	Signature            string
	Code                 *Code
	Annotations          []string
	ParameterAnnotations [][]string
	TypeAnnotations      []TypeAnnotation
	Exceptions           []string
}

// Field describes a field to add.
type Field struct {
	Access          uint16
	Name            string
	Descriptor      string
	Signature       string
	Annotations     []string
	TypeAnnotations []TypeAnnotation
}

// ClassBuilder accumulates a class file. Constant pool entries are
// deduplicated.
type ClassBuilder struct {
	Major uint16

	pool      []byte
	count     uint16
	index     map[string]uint16
	access    uint16
	this      uint16
	super     uint16
	ifaces    []uint16
	fields    [][]byte
	methods   [][]byte
	attrs     [][]byte
	bootstrap [][]byte
	classAnns []string
	classTAs  []TypeAnnotation
	signature string
	source    string
}

// New starts a public class. An empty super produces super_class 0.
func New(name, super string) *ClassBuilder {
	b := &ClassBuilder{
		Major:  61,
		count:  1,
		index:  make(map[string]uint16),
		access: Public | Super,
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

// Access replaces the class access flags.
func (b *ClassBuilder) Access(flags uint16) *ClassBuilder {
	b.access = flags
	return b
}

// Implements adds interfaces.
func (b *ClassBuilder) Implements(names ...string) *ClassBuilder {
	for _, n := range names {
		b.ifaces = append(b.ifaces, b.Class(n))
	}
	return b
}

// Signature sets the class Signature attribute.
func (b *ClassBuilder) Signature(sig string) *ClassBuilder {
	b.signature = sig
	return b
}

// SourceFile sets the SourceFile attribute.
func (b *ClassBuilder) SourceFile(name string) *ClassBuilder {
	b.source = name
	return b
}

// Annotate adds a runtime-visible class annotation with no elements.
func (b *ClassBuilder) Annotate(desc string) *ClassBuilder {
	b.classAnns = append(b.classAnns, desc)
	return b
}

// TypeAnnotate adds a class-level type annotation.
func (b *ClassBuilder) TypeAnnotate(ta TypeAnnotation) *ClassBuilder {
	b.classTAs = append(b.classTAs, ta)
	return b
}

func (b *ClassBuilder) add(key string, entry []byte, slots uint16) uint16 {
	if i, ok := b.index[key]; ok {
		return i
	}
	i := b.count
	b.pool = append(b.pool, entry...)
	b.count += slots
	b.index[key] = i
	return i
}

// UTF8 interns a Utf8 constant.
func (b *ClassBuilder) UTF8(s string) uint16 {
	entry := []byte{1}
	entry = u2(entry, uint16(len(s)))
	entry = append(entry, s...)
	return b.add("u:"+s, entry, 1)
}

// Class interns a Class constant.
func (b *ClassBuilder) Class(name string) uint16 {
	return b.add("c:"+name, u2([]byte{7}, b.UTF8(name)), 1)
}

// String interns a String constant.
func (b *ClassBuilder) String(s string) uint16 {
	return b.add("s:"+s, u2([]byte{8}, b.UTF8(s)), 1)
}

// Integer interns an Integer constant.
func (b *ClassBuilder) Integer(v int32) uint16 {
	return b.add("i:"+strconv.Itoa(int(v)), u4([]byte{3}, uint32(v)), 1)
}

// Long interns a Long constant, which takes two slots.
func (b *ClassBuilder) Long(v int64) uint16 {
	entry := u4([]byte{5}, uint32(uint64(v)>>32))
	return b.add("j:"+strconv.FormatInt(v, 10), u4(entry, uint32(v)), 2)
}

// Double interns a Double constant.
func (b *ClassBuilder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	entry := u4([]byte{6}, uint32(bits>>32))
	return b.add("d:"+strconv.FormatFloat(v, 'g', -1, 64), u4(entry, uint32(bits)), 2)
}

// NameAndType interns a NameAndType constant.
func (b *ClassBuilder) NameAndType(name, desc string) uint16 {
	entry := u2(u2([]byte{12}, b.UTF8(name)), b.UTF8(desc))
	return b.add("n:"+name+":"+desc, entry, 1)
}

func (b *ClassBuilder) memberRef(tag byte, owner, name, desc string) uint16 {
	entry := u2(u2([]byte{tag}, b.Class(owner)), b.NameAndType(name, desc))
	return b.add(fmt.Sprintf("%d:%s.%s%s", tag, owner, name, desc), entry, 1)
}

// Fieldref interns a Fieldref constant.
func (b *ClassBuilder) Fieldref(owner, name, desc string) uint16 {
	return b.memberRef(9, owner, name, desc)
}

// Methodref interns a Methodref constant.
func (b *ClassBuilder) Methodref(owner, name, desc string) uint16 {
	return b.memberRef(10, owner, name, desc)
}

// InterfaceMethodref interns an InterfaceMethodref constant.
func (b *ClassBuilder) InterfaceMethodref(owner, name, desc string) uint16 {
	return b.memberRef(11, owner, name, desc)
}

// MethodHandle interns a MethodHandle constant over a member reference.
func (b *ClassBuilder) MethodHandle(kind uint8, ref uint16) uint16 {
	entry := u2([]byte{15, kind}, ref)
	return b.add(fmt.Sprintf("h:%d:%d", kind, ref), entry, 1)
}

// MethodType interns a MethodType constant.
func (b *ClassBuilder) MethodType(desc string) uint16 {
	return b.add("t:"+desc, u2([]byte{16}, b.UTF8(desc)), 1)
}

// InvokeDynamic interns an InvokeDynamic constant.
func (b *ClassBuilder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	entry := u2(u2([]byte{18}, bootstrap), b.NameAndType(name, desc))
	return b.add(fmt.Sprintf("y:%d:%s%s", bootstrap, name, desc), entry, 1)
}

// Bootstrap appends a BootstrapMethods entry and returns its index.
func (b *ClassBuilder) Bootstrap(handle uint16, args ...uint16) uint16 {
	entry := u2(u2(nil, handle), uint16(len(args)))
	for _, a := range args {
		entry = u2(entry, a)
	}
	b.bootstrap = append(b.bootstrap, entry)
	return uint16(len(b.bootstrap) - 1)
}

// AddField appends a field.
func (b *ClassBuilder) AddField(f Field) *ClassBuilder {
	out := u2(nil, f.Access)
	out = u2(out, b.UTF8(f.Name))
	out = u2(out, b.UTF8(f.Descriptor))
	var attrs [][]byte
	if f.Signature != "" {
		attrs = append(attrs, b.attr("Signature", u2(nil, b.UTF8(f.Signature))))
	}
	if len(f.Annotations) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleAnnotations", b.annotations(f.Annotations)))
	}
	if len(f.TypeAnnotations) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleTypeAnnotations", b.typeAnnotations(f.TypeAnnotations)))
	}
	b.fields = append(b.fields, appendAttrs(out, attrs))
	return b
}

// AddMethod appends a method.
func (b *ClassBuilder) AddMethod(m Method) *ClassBuilder {
	out := u2(nil, m.Access)
	out = u2(out, b.UTF8(m.Name))
	out = u2(out, b.UTF8(m.Descriptor))
	var attrs [][]byte
	if m.Code != nil {
		attrs = append(attrs, b.code(m.Code))
	}
	if m.Signature != "" {
		attrs = append(attrs, b.attr("Signature", u2(nil, b.UTF8(m.Signature))))
	}
	if len(m.Exceptions) > 0 {
		body := u2(nil, uint16(len(m.Exceptions)))
		for _, e := range m.Exceptions {
			body = u2(body, b.Class(e))
		}
		attrs = append(attrs, b.attr("Exceptions", body))
	}
	if len(m.Annotations) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleAnnotations", b.annotations(m.Annotations)))
	}
	if len(m.ParameterAnnotations) > 0 {
		body := []byte{byte(len(m.ParameterAnnotations))}
		for _, anns := range m.ParameterAnnotations {
			body = append(body, b.annotations(anns)...)
		}
		attrs = append(attrs, b.attr("RuntimeVisibleParameterAnnotations", body))
	}
	if len(m.TypeAnnotations) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleTypeAnnotations", b.typeAnnotations(m.TypeAnnotations)))
	}
	b.methods = append(b.methods, appendAttrs(out, attrs))
	return b
}

func (b *ClassBuilder) code(c *Code) []byte {
	body := u2(u2(nil, uint16(c.MaxStack)), uint16(c.MaxLocals))
	body = u4(body, uint32(len(c.Bytecode)))
	body = append(body, c.Bytecode...)
	body = u2(body, uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		body = u2(u2(u2(body, uint16(h.Start)), uint16(h.End)), uint16(h.Handler))
		var catch uint16
		if h.CatchType != "" {
			catch = b.Class(h.CatchType)
		}
		body = u2(body, catch)
	}
	var sub [][]byte
	if len(c.Lines) > 0 {
		lt := u2(nil, uint16(len(c.Lines)))
		for _, l := range c.Lines {
			lt = u2(u2(lt, uint16(l.PC)), uint16(l.Line))
		}
		sub = append(sub, b.attr("LineNumberTable", lt))
	}
	return b.attr("Code", appendAttrs(body, sub))
}

func (b *ClassBuilder) attr(name string, body []byte) []byte {
	out := u2(nil, b.UTF8(name))
	out = u4(out, uint32(len(body)))
	return append(out, body...)
}

func (b *ClassBuilder) annotations(descs []string) []byte {
	out := u2(nil, uint16(len(descs)))
	for _, d := range descs {
		out = u2(u2(out, b.UTF8(d)), 0)
	}
	return out
}

func (b *ClassBuilder) typeAnnotations(tas []TypeAnnotation) []byte {
	out := u2(nil, uint16(len(tas)))
	for _, ta := range tas {
		out = append(out, ta.Target)
		switch ta.Target {
		case 0x00, 0x01, TargetParameter:
			out = append(out, byte(ta.Index))
		case TargetSupertype, 0x17:
			out = u2(out, uint16(ta.Index))
		case TargetClassTypeParameterBound, 0x12:
			out = append(out, byte(ta.Index), byte(ta.Bound))
		}
		path := ParsePath(ta.Path)
		out = append(out, byte(len(path)/2))
		out = append(out, path...)
		out = u2(u2(out, b.UTF8(ta.Type)), 0)
	}
	return out
}

// ParsePath encodes a textual type path into (kind, index) byte pairs.
func ParsePath(s string) []byte {
	var out []byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '[':
			out = append(out, 0, 0)
		case c == '.':
			out = append(out, 1, 0)
		case c == '*':
			out = append(out, 2, 0)
		case c >= '0' && c <= '9':
			j := strings.IndexByte(s[i:], ';')
			if j < 0 {
				panic("classgen: unterminated type argument in path " + s)
			}
			n, err := strconv.Atoi(s[i : i+j])
			if err != nil {
				panic("classgen: bad type path " + s)
			}
			out = append(out, 3, byte(n))
			i += j
		default:
			panic("classgen: bad type path " + s)
		}
	}
	return out
}

// Bytes serializes the class file.
func (b *ClassBuilder) Bytes() []byte {
	// Class attributes intern their names before the pool is written.
	var attrs [][]byte
	if b.signature != "" {
		attrs = append(attrs, b.attr("Signature", u2(nil, b.UTF8(b.signature))))
	}
	if b.source != "" {
		attrs = append(attrs, b.attr("SourceFile", u2(nil, b.UTF8(b.source))))
	}
	if len(b.classAnns) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleAnnotations", b.annotations(b.classAnns)))
	}
	if len(b.classTAs) > 0 {
		attrs = append(attrs, b.attr("RuntimeVisibleTypeAnnotations", b.typeAnnotations(b.classTAs)))
	}
	if len(b.bootstrap) > 0 {
		body := u2(nil, uint16(len(b.bootstrap)))
		for _, e := range b.bootstrap {
			body = append(body, e...)
		}
		attrs = append(attrs, b.attr("BootstrapMethods", body))
	}

	out := u4(nil, 0xCAFEBABE)
	out = u2(u2(out, 0), b.Major)
	out = u2(out, b.count)
	out = append(out, b.pool...)
	out = u2(out, b.access)
	out = u2(u2(out, b.this), b.super)
	out = u2(out, uint16(len(b.ifaces)))
	for _, i := range b.ifaces {
		out = u2(out, i)
	}
	out = u2(out, uint16(len(b.fields)))
	for _, f := range b.fields {
		out = append(out, f...)
	}
	out = u2(out, uint16(len(b.methods)))
	for _, m := range b.methods {
		out = append(out, m...)
	}
	return appendAttrs(out, attrs)
}

func appendAttrs(out []byte, attrs [][]byte) []byte {
	out = u2(out, uint16(len(attrs)))
	for _, a := range attrs {
		out = append(out, a...)
	}
	return out
}

func u2(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}

func u4(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}
