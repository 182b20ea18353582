package classfile

// Attributes holds the decoded attributes of a class, field or method.
// Attributes the parser does not know are skipped by length.
type Attributes struct {
	Signature  string
	SourceFile string
	Code       *Code
	Exceptions []string

	// Annotations are declaration annotations, visible first.
	Annotations []Annotation

	// ParameterAnnotations are indexed by formal parameter.
	ParameterAnnotations [][]Annotation

	TypeAnnotations  []TypeAnnotation
	BootstrapMethods []BootstrapMethod
}

// Code is a method's Code attribute.
type Code struct {
	MaxStack  int
	MaxLocals int
	Bytecode  []byte

	// Offset is the file position of the first bytecode byte.
	Offset int

	ExceptionTable     []ExceptionEntry
	LineNumbers        []LineNumber
	LocalVariables     []LocalVariable
	LocalVariableTypes []LocalVariable
	TypeAnnotations    []TypeAnnotation
}

// ExceptionEntry is one row of an exception table. CatchType is empty for
// handlers that catch everything.
type ExceptionEntry struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType string
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC int
	Line    int
}

// LocalVariable is a LocalVariableTable or LocalVariableTypeTable row.
// For the type table Descriptor holds the generic signature.
type LocalVariable struct {
	StartPC    int
	Length     int
	Name       string
	Descriptor string
	Index      int
}

// LineForOffset returns the source line of the last line-table entry that
// starts at or before offset.
func (c *Code) LineForOffset(offset int) (int, bool) {
	if c == nil {
		return 0, false
	}
	line, found := 0, false
	best := -1
	for _, ln := range c.LineNumbers {
		if ln.StartPC <= offset && ln.StartPC >= best {
			best, line, found = ln.StartPC, ln.Line, true
		}
	}
	return line, found
}

// Annotation is a decoded annotation. Type is a field descriptor such as
// "Lorg/jspecify/annotations/Nullable;".
type Annotation struct {
	Type     string
	Elements []ElementValuePair
	Visible  bool
}

// ElementValuePair is a named annotation element.
type ElementValuePair struct {
	Name  string
	Value ElementValue
}

// ElementValue is an annotation element value. Tag is the JVM tag character.
// Constants are rendered into Const; enums use EnumType and Const.
type ElementValue struct {
	Tag        byte
	Const      string
	EnumType   string
	Annotation *Annotation
	Array      []ElementValue
}

// Strings flattens a string or string array element into its values.
func (v ElementValue) Strings() []string {
	switch v.Tag {
	case 's':
		return []string{v.Const}
	case '[':
		var out []string
		for _, e := range v.Array {
			out = append(out, e.Strings()...)
		}
		return out
	}
	return nil
}

// Element returns the value of the named element.
func (a Annotation) Element(name string) (ElementValue, bool) {
	for _, e := range a.Elements {
		if e.Name == name {
			return e.Value, true
		}
	}
	return ElementValue{}, false
}

// Type annotation target kinds.
const (
	TargetClassTypeParameter       uint8 = 0x00
	TargetMethodTypeParameter      uint8 = 0x01
	TargetSupertype                uint8 = 0x10
	TargetClassTypeParameterBound  uint8 = 0x11
	TargetMethodTypeParameterBound uint8 = 0x12
	TargetField                    uint8 = 0x13
	TargetMethodReturn             uint8 = 0x14
	TargetMethodReceiver           uint8 = 0x15
	TargetMethodFormalParameter    uint8 = 0x16
	TargetThrows                   uint8 = 0x17
	TargetLocalVariable            uint8 = 0x40
	TargetResourceVariable         uint8 = 0x41
	TargetExceptionParameter       uint8 = 0x42
)

// Type path step kinds.
const (
	PathArray        uint8 = 0
	PathNested       uint8 = 1
	PathWildcard     uint8 = 2
	PathTypeArgument uint8 = 3
)

// TypePathEntry is one step of a type annotation's type_path.
type TypePathEntry struct {
	Kind  uint8
	Index uint8
}

// TypeAnnotation is a decoded type_annotation structure.
//
// TargetIndex is the type parameter, supertype, formal parameter, throws or
// exception table index, or the bytecode offset for offset targets.
// BoundIndex is set for type parameter bound targets.
type TypeAnnotation struct {
	TargetType  uint8
	TargetIndex int
	BoundIndex  int
	Path        []TypePathEntry
	Annotation  Annotation
}

// BootstrapMethod is a resolved BootstrapMethods entry.
type BootstrapMethod struct {
	Handle Constant
	Args   []Constant
}

type attrTarget int

const (
	attrOnClass attrTarget = iota
	attrOnField
	attrOnMethod
	attrOnCode
)

func readAttributes(r *reader, pool *ConstantPool, on attrTarget) Attributes {
	var attrs Attributes
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		name, err := pool.UTF8(r.u2())
		if r.err != nil {
			break
		}
		r.check(err)
		length := int(r.u4())
		body := r.sub(length)
		if r.err != nil || body.err != nil {
			if r.err == nil {
				r.err = body.err
			}
			break
		}
		readAttribute(body, pool, on, name, &attrs)
		if body.err == nil && body.remaining() != 0 {
			body.failf("attribute %s has %d trailing bytes", name, body.remaining())
		}
		if body.err != nil {
			r.err = body.err
		}
	}
	return attrs
}

func readAttribute(r *reader, pool *ConstantPool, on attrTarget, name string, attrs *Attributes) {
	switch {
	case name == "Signature" && on != attrOnCode:
		s, err := pool.UTF8(r.u2())
		r.check(err)
		attrs.Signature = s
	case name == "SourceFile" && on == attrOnClass:
		s, err := pool.UTF8(r.u2())
		r.check(err)
		attrs.SourceFile = s
	case name == "Code" && on == attrOnMethod:
		attrs.Code = readCode(r, pool)
	case name == "Exceptions" && on == attrOnMethod:
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			s, err := pool.ClassName(r.u2())
			r.check(err)
			attrs.Exceptions = append(attrs.Exceptions, s)
		}
	case name == "BootstrapMethods" && on == attrOnClass:
		attrs.BootstrapMethods = readBootstrapMethods(r, pool)
	case name == "RuntimeVisibleAnnotations" && on != attrOnCode:
		attrs.Annotations = append(readAnnotations(r, pool, true), attrs.Annotations...)
	case name == "RuntimeInvisibleAnnotations" && on != attrOnCode:
		attrs.Annotations = append(attrs.Annotations, readAnnotations(r, pool, false)...)
	case name == "RuntimeVisibleParameterAnnotations" && on == attrOnMethod:
		attrs.ParameterAnnotations = mergeParameterAnnotations(attrs.ParameterAnnotations, readParameterAnnotations(r, pool, true))
	case name == "RuntimeInvisibleParameterAnnotations" && on == attrOnMethod:
		attrs.ParameterAnnotations = mergeParameterAnnotations(attrs.ParameterAnnotations, readParameterAnnotations(r, pool, false))
	case name == "RuntimeVisibleTypeAnnotations":
		attrs.TypeAnnotations = append(attrs.TypeAnnotations, readTypeAnnotations(r, pool, true)...)
	case name == "RuntimeInvisibleTypeAnnotations":
		attrs.TypeAnnotations = append(attrs.TypeAnnotations, readTypeAnnotations(r, pool, false)...)
	default:
		r.bytes(r.remaining())
	}
}

func readCode(r *reader, pool *ConstantPool) *Code {
	c := &Code{
		MaxStack:  int(r.u2()),
		MaxLocals: int(r.u2()),
	}
	length := int(r.u4())
	if r.err == nil && (length == 0 || length > 65535) {
		r.failf("code length %d out of range", length)
		return nil
	}
	c.Offset = r.offset()
	c.Bytecode = r.bytes(length)
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		e := ExceptionEntry{
			StartPC:   int(r.u2()),
			EndPC:     int(r.u2()),
			HandlerPC: int(r.u2()),
		}
		s, err := pool.OptionalClassName(r.u2())
		r.check(err)
		e.CatchType = s
		c.ExceptionTable = append(c.ExceptionTable, e)
	}
	if r.err != nil {
		return nil
	}
	sub := readCodeAttributes(r, pool, c)
	if r.err == nil {
		c.TypeAnnotations = sub.TypeAnnotations
	}
	return c
}

// readCodeAttributes reads the attributes nested in Code, filling the debug
// tables directly on c.
func readCodeAttributes(r *reader, pool *ConstantPool, c *Code) Attributes {
	var attrs Attributes
	count := int(r.u2())
	for i := 0; i < count && r.err == nil; i++ {
		name, err := pool.UTF8(r.u2())
		r.check(err)
		body := r.sub(int(r.u4()))
		if r.err != nil {
			break
		}
		switch name {
		case "LineNumberTable":
			n := int(body.u2())
			for j := 0; j < n && body.err == nil; j++ {
				c.LineNumbers = append(c.LineNumbers, LineNumber{StartPC: int(body.u2()), Line: int(body.u2())})
			}
		case "LocalVariableTable", "LocalVariableTypeTable":
			n := int(body.u2())
			for j := 0; j < n && body.err == nil; j++ {
				lv := LocalVariable{StartPC: int(body.u2()), Length: int(body.u2())}
				var err error
				if lv.Name, err = pool.UTF8(body.u2()); err == nil {
					lv.Descriptor, err = pool.UTF8(body.u2())
				}
				body.check(err)
				lv.Index = int(body.u2())
				if name == "LocalVariableTable" {
					c.LocalVariables = append(c.LocalVariables, lv)
				} else {
					c.LocalVariableTypes = append(c.LocalVariableTypes, lv)
				}
			}
		default:
			readAttribute(body, pool, attrOnCode, name, &attrs)
		}
		if body.err == nil && body.remaining() != 0 {
			body.failf("attribute %s has %d trailing bytes", name, body.remaining())
		}
		if body.err != nil {
			r.err = body.err
		}
	}
	return attrs
}

func readBootstrapMethods(r *reader, pool *ConstantPool) []BootstrapMethod {
	n := int(r.u2())
	out := make([]BootstrapMethod, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var bm BootstrapMethod
		h, err := pool.expect(r.u2(), ConstantMethodHandle)
		if err != nil {
			r.check(err)
			break
		}
		bm.Handle = *h
		argc := int(r.u2())
		for j := 0; j < argc && r.err == nil; j++ {
			c, err := pool.Loadable(r.u2())
			r.check(err)
			bm.Args = append(bm.Args, c)
		}
		out = append(out, bm)
	}
	return out
}

func readAnnotations(r *reader, pool *ConstantPool, visible bool) []Annotation {
	n := int(r.u2())
	out := make([]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, readAnnotation(r, pool, visible))
	}
	return out
}

func readParameterAnnotations(r *reader, pool *ConstantPool, visible bool) [][]Annotation {
	n := int(r.u1())
	out := make([][]Annotation, n)
	for i := 0; i < n && r.err == nil; i++ {
		out[i] = readAnnotations(r, pool, visible)
	}
	return out
}

func mergeParameterAnnotations(have, add [][]Annotation) [][]Annotation {
	if len(add) > len(have) {
		grown := make([][]Annotation, len(add))
		copy(grown, have)
		have = grown
	}
	for i, anns := range add {
		have[i] = append(have[i], anns...)
	}
	return have
}

func readAnnotation(r *reader, pool *ConstantPool, visible bool) Annotation {
	typ, err := pool.UTF8(r.u2())
	r.check(err)
	a := Annotation{Type: typ, Visible: visible}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name, err := pool.UTF8(r.u2())
		r.check(err)
		a.Elements = append(a.Elements, ElementValuePair{Name: name, Value: readElementValue(r, pool, visible, 0)})
	}
	return a
}

const maxElementNesting = 32

func readElementValue(r *reader, pool *ConstantPool, visible bool, depth int) ElementValue {
	if depth > maxElementNesting {
		r.failf("annotation element values nested deeper than %d", maxElementNesting)
		return ElementValue{}
	}
	v := ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		c, err := pool.At(r.u2())
		r.check(err)
		if err == nil {
			v.Const = constantText(c)
		}
	case 's':
		s, err := pool.UTF8(r.u2())
		r.check(err)
		v.Const = s
	case 'e':
		var err error
		if v.EnumType, err = pool.UTF8(r.u2()); err == nil {
			v.Const, err = pool.UTF8(r.u2())
		}
		r.check(err)
	case 'c':
		s, err := pool.UTF8(r.u2())
		r.check(err)
		v.Const = s
	case '@':
		a := readAnnotation(r, pool, visible)
		v.Annotation = &a
	case '[':
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			v.Array = append(v.Array, readElementValue(r, pool, visible, depth+1))
		}
	default:
		r.failf("unknown element value tag %q", v.Tag)
	}
	return v
}

func readTypeAnnotations(r *reader, pool *ConstantPool, visible bool) []TypeAnnotation {
	n := int(r.u2())
	out := make([]TypeAnnotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		ta := TypeAnnotation{TargetType: r.u1()}
		switch ta.TargetType {
		case TargetClassTypeParameter, TargetMethodTypeParameter, TargetMethodFormalParameter:
			ta.TargetIndex = int(r.u1())
		case TargetSupertype, TargetThrows, TargetExceptionParameter:
			ta.TargetIndex = int(r.u2())
		case TargetClassTypeParameterBound, TargetMethodTypeParameterBound:
			ta.TargetIndex = int(r.u1())
			ta.BoundIndex = int(r.u1())
		case TargetField, TargetMethodReturn, TargetMethodReceiver:
		case TargetLocalVariable, TargetResourceVariable:
			entries := int(r.u2())
			for j := 0; j < entries && r.err == nil; j++ {
				start, _, index := r.u2(), r.u2(), r.u2()
				if j == 0 {
					ta.TargetIndex = int(index)
					ta.BoundIndex = int(start)
				}
			}
		case 0x43, 0x44, 0x45, 0x46:
			ta.TargetIndex = int(r.u2())
		case 0x47, 0x48, 0x49, 0x4A, 0x4B:
			ta.TargetIndex = int(r.u2())
			ta.BoundIndex = int(r.u1())
		default:
			r.failf("unknown type annotation target 0x%02x", ta.TargetType)
			return out
		}
		pathLen := int(r.u1())
		for j := 0; j < pathLen && r.err == nil; j++ {
			ta.Path = append(ta.Path, TypePathEntry{Kind: r.u1(), Index: r.u1()})
		}
		ta.Annotation = readAnnotation(r, pool, visible)
		out = append(out, ta)
	}
	return out
}
