package ir

import (
	"fmt"

	"github.com/715d/classflow/pkg/classfile"
)

// BuildOptions carries facts about a class that live outside its own class
// file.
type BuildOptions struct {
	// InheritedNullMarked is set when the package or an enclosing class is
	// @NullMarked.
	InheritedNullMarked bool
}

// superTypeIndex is the supertype target index naming the superclass.
const superTypeIndex = 0xFFFF

// Build turns a parsed class file into its analysis view. Bad signatures
// degrade to descriptor types and are recorded in Class.Warnings; bad
// descriptors and undecodable code fail the class.
func Build(cf *classfile.ClassFile, opts BuildOptions) (*Class, error) {
	c := &Class{
		Name:        cf.Name,
		Super:       cf.Super,
		Interfaces:  cf.Interfaces,
		Access:      cf.Access,
		Signature:   cf.Attributes.Signature,
		SourceFile:  cf.Attributes.SourceFile,
		Annotations: cf.Attributes.Annotations,
	}
	c.NullMarked = scopeMarked(opts.InheritedNullMarked, c.Annotations)

	c.buildClassTypes(cf)

	for _, f := range cf.Fields {
		field, err := c.buildField(f)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", cf.Name, err)
		}
		c.Fields = append(c.Fields, field)
	}
	for _, m := range cf.Methods {
		method, err := c.buildMethod(cf, m)
		if err != nil {
			return nil, fmt.Errorf("class %s: method %s%s: %w", cf.Name, m.Name, m.Descriptor, err)
		}
		c.Methods = append(c.Methods, method)
	}
	return c, nil
}

func scopeMarked(inherited bool, anns []classfile.Annotation) bool {
	switch {
	case HasAnnotation(anns, NullUnmarkedAnnotation):
		return false
	case HasAnnotation(anns, NullMarkedAnnotation):
		return true
	}
	return inherited
}

func (c *Class) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Errorf(format, args...))
}

func (c *Class) buildClassTypes(cf *classfile.ClassFile) {
	erased := func() {
		if cf.Super != "" {
			c.SuperType = &TypeUse{Kind: KindClass, Name: cf.Super}
		}
		c.InterfaceTypes = nil
		for _, i := range cf.Interfaces {
			c.InterfaceTypes = append(c.InterfaceTypes, TypeUse{Kind: KindClass, Name: i})
		}
	}
	parsed := false
	if c.Signature != "" {
		sig, err := ParseClassSignature(c.Signature)
		if err != nil {
			c.warnf("class signature: %w", err)
		} else {
			c.TypeParams = sig.TypeParams
			c.SuperType = &sig.Super
			c.InterfaceTypes = sig.Interfaces
			parsed = true
		}
	}
	if !parsed {
		erased()
	}

	for _, ta := range cf.Attributes.TypeAnnotations {
		switch ta.TargetType {
		case classfile.TargetClassTypeParameterBound:
			if !parsed || ta.TargetIndex >= len(c.TypeParams) {
				continue
			}
			annotate(c.TypeParams[ta.TargetIndex].bound(ta.BoundIndex), ta)
		case classfile.TargetSupertype:
			switch {
			case ta.TargetIndex == superTypeIndex:
				annotate(c.SuperType, ta)
			case ta.TargetIndex < len(c.InterfaceTypes):
				annotate(&c.InterfaceTypes[ta.TargetIndex], ta)
			}
		}
	}

	if c.NullMarked {
		applyNullMarkedParams(c.TypeParams)
		if c.SuperType != nil {
			applyNullMarked(c.SuperType)
		}
		for i := range c.InterfaceTypes {
			applyNullMarked(&c.InterfaceTypes[i])
		}
	}
}

func (c *Class) buildField(f classfile.Member) (*Field, error) {
	t, err := ParseFieldDescriptor(f.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	if sig := f.Attributes.Signature; sig != "" {
		if st, err := ParseFieldSignature(sig); err != nil {
			c.warnf("field %s signature: %w", f.Name, err)
		} else {
			t = st
		}
	}
	for _, ta := range f.Attributes.TypeAnnotations {
		if ta.TargetType == classfile.TargetField {
			annotate(&t, ta)
		}
	}
	applyDeclared(&t, f.Attributes.Annotations)
	if c.NullMarked {
		applyNullMarked(&t)
	}
	return &Field{
		Owner:       c.Name,
		Name:        f.Name,
		Descriptor:  f.Descriptor,
		Access:      f.Access,
		Type:        t,
		Annotations: f.Attributes.Annotations,
	}, nil
}

func (c *Class) buildMethod(cf *classfile.ClassFile, mem classfile.Member) (*Method, error) {
	md, err := ParseMethodDescriptor(mem.Descriptor)
	if err != nil {
		return nil, err
	}
	attrs := mem.Attributes
	m := &Method{
		Owner:                c.Name,
		Name:                 mem.Name,
		Descriptor:           mem.Descriptor,
		Access:               mem.Access,
		Signature:            attrs.Signature,
		Params:               md.Params,
		Return:               md.Return,
		Exceptions:           attrs.Exceptions,
		Annotations:          attrs.Annotations,
		ParameterAnnotations: attrs.ParameterAnnotations,
	}
	m.NullMarked = scopeMarked(c.NullMarked, m.Annotations)

	// Parameter positions are trusted only when the signature and the
	// descriptor agree on their number. Compilers omit synthetic parameters
	// from signatures.
	paramsAligned := true
	if attrs.Signature != "" {
		sig, err := ParseMethodSignature(attrs.Signature)
		switch {
		case err != nil:
			c.warnf("method %s%s signature: %w", mem.Name, mem.Descriptor, err)
		case len(sig.Params) != len(md.Params):
			c.warnf("method %s%s: signature has %d parameters, descriptor %d",
				mem.Name, mem.Descriptor, len(sig.Params), len(md.Params))
			m.TypeParams = sig.TypeParams
			m.Return = sig.Return
			paramsAligned = false
		default:
			m.TypeParams = sig.TypeParams
			m.Params = sig.Params
			m.Return = sig.Return
		}
	}

	for _, ta := range attrs.TypeAnnotations {
		switch ta.TargetType {
		case classfile.TargetMethodReturn:
			annotate(&m.Return, ta)
		case classfile.TargetMethodFormalParameter:
			if paramsAligned && ta.TargetIndex < len(m.Params) {
				annotate(&m.Params[ta.TargetIndex], ta)
			}
		case classfile.TargetMethodTypeParameterBound:
			if ta.TargetIndex < len(m.TypeParams) {
				annotate(m.TypeParams[ta.TargetIndex].bound(ta.BoundIndex), ta)
			}
		}
	}
	applyDeclared(&m.Return, m.Annotations)
	if len(attrs.ParameterAnnotations) == len(m.Params) {
		for i := range m.Params {
			applyDeclared(&m.Params[i], attrs.ParameterAnnotations[i])
		}
	}
	if m.NullMarked {
		applyNullMarkedParams(m.TypeParams)
		applyNullMarked(&m.Return)
		for i := range m.Params {
			applyNullMarked(&m.Params[i])
		}
	}

	if code := attrs.Code; code != nil {
		m.HasCode = true
		m.MaxStack, m.MaxLocals = code.MaxStack, code.MaxLocals
		m.LineNumbers = code.LineNumbers
		m.Instructions, err = Decode(code, cf.Pool, cf.Attributes.BootstrapMethods)
		if err != nil {
			return nil, err
		}
		for _, e := range code.ExceptionTable {
			m.Handlers = append(m.Handlers, ExceptionHandler{
				Start:     e.StartPC,
				End:       e.EndPC,
				Handler:   e.HandlerPC,
				CatchType: e.CatchType,
			})
		}
	}
	return m, nil
}
