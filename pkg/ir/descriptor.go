package ir

import "fmt"

// ParseFieldDescriptor parses a field descriptor into an erased TypeUse with
// every position Unknown.
func ParseFieldDescriptor(desc string) (TypeUse, error) {
	p := sigParser{s: desc}
	t := p.descriptorType()
	if p.err == nil && p.pos != len(desc) {
		p.fail("unexpected trailing characters")
	}
	if p.err != nil {
		return TypeUse{}, p.err
	}
	return t, nil
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []TypeUse
	Return TypeUse
}

// ParseMethodDescriptor parses a method descriptor such as
// "(ILjava/lang/String;)V".
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	p := sigParser{s: desc}
	var md MethodDescriptor
	p.expect('(')
	for p.err == nil && p.peek() != ')' {
		md.Params = append(md.Params, p.descriptorType())
	}
	p.expect(')')
	if p.err == nil && p.peek() == 'V' {
		p.pos++
		md.Return = TypeUse{Kind: KindVoid}
	} else {
		md.Return = p.descriptorType()
	}
	if p.err == nil && p.pos != len(desc) {
		p.fail("unexpected trailing characters")
	}
	if p.err != nil {
		return MethodDescriptor{}, p.err
	}
	return md, nil
}

// ParamSlots returns the number of local slots taken by the parameters,
// excluding the receiver.
func (md MethodDescriptor) ParamSlots() int {
	n := 0
	for _, p := range md.Params {
		n++
		if p.Wide() {
			n++
		}
	}
	return n
}

// ArgSlots returns the local slots taken by the arguments of a method with
// the given descriptor, or an error for a bad descriptor.
func ArgSlots(desc string) (int, error) {
	md, err := ParseMethodDescriptor(desc)
	if err != nil {
		return 0, err
	}
	return md.ParamSlots(), nil
}

func (p *sigParser) descriptorType() TypeUse {
	if p.err != nil {
		return TypeUse{}
	}
	c := p.next()
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return TypeUse{Kind: KindBase, Name: string(c)}
	case 'L':
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != ';' {
			p.pos++
		}
		name := p.s[start:p.pos]
		p.expect(';')
		if name == "" {
			p.fail("empty class name")
		}
		return TypeUse{Kind: KindClass, Name: name}
	case '[':
		elem := p.descriptorType()
		return TypeUse{Kind: KindArray, Elem: &elem}
	case 0:
		p.fail("unexpected end of descriptor")
	default:
		p.fail(fmt.Sprintf("unexpected %q", c))
	}
	return TypeUse{}
}
