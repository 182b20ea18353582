package ir

import (
	"fmt"
	"strings"
)

// UnsupportedSignatureError reports a Signature attribute that does not match
// the generic signature grammar.
type UnsupportedSignatureError struct {
	Signature string
	Offset    int
	Reason    string
}

func (e *UnsupportedSignatureError) Error() string {
	return fmt.Sprintf("unsupported signature %q at %d: %s", e.Signature, e.Offset, e.Reason)
}

// ClassSignature is a parsed class Signature attribute.
type ClassSignature struct {
	TypeParams []TypeParam
	Super      TypeUse
	Interfaces []TypeUse
}

// MethodSignature is a parsed method Signature attribute.
type MethodSignature struct {
	TypeParams []TypeParam
	Params     []TypeUse
	Return     TypeUse
	Throws     []TypeUse
}

// ParseClassSignature parses a class signature such as
// "<T:Ljava/lang/Object;>Ljava/lang/Object;Ljava/util/List<TT;>;".
func ParseClassSignature(sig string) (ClassSignature, error) {
	p := sigParser{s: sig}
	var cs ClassSignature
	cs.TypeParams = p.typeParams()
	cs.Super = p.classType()
	for p.err == nil && p.pos < len(sig) {
		cs.Interfaces = append(cs.Interfaces, p.classType())
	}
	if p.err != nil {
		return ClassSignature{}, p.err
	}
	return cs, nil
}

// ParseMethodSignature parses a method signature such as
// "<K:Ljava/lang/Object;>(TK;)Ljava/util/List<TK;>;^Ljava/io/IOException;".
func ParseMethodSignature(sig string) (MethodSignature, error) {
	p := sigParser{s: sig}
	var ms MethodSignature
	ms.TypeParams = p.typeParams()
	p.expect('(')
	for p.err == nil && p.peek() != ')' {
		ms.Params = append(ms.Params, p.javaType())
	}
	p.expect(')')
	if p.err == nil && p.peek() == 'V' {
		p.pos++
		ms.Return = TypeUse{Kind: KindVoid}
	} else {
		ms.Return = p.javaType()
	}
	for p.err == nil && p.peek() == '^' {
		p.pos++
		if p.peek() == 'T' {
			ms.Throws = append(ms.Throws, p.typeVar())
		} else {
			ms.Throws = append(ms.Throws, p.classType())
		}
	}
	if p.err == nil && p.pos != len(sig) {
		p.fail("unexpected trailing characters")
	}
	if p.err != nil {
		return MethodSignature{}, p.err
	}
	return ms, nil
}

// ParseFieldSignature parses a field signature, a single reference type.
func ParseFieldSignature(sig string) (TypeUse, error) {
	p := sigParser{s: sig}
	t := p.referenceType()
	if p.err == nil && p.pos != len(sig) {
		p.fail("unexpected trailing characters")
	}
	if p.err != nil {
		return TypeUse{}, p.err
	}
	return t, nil
}

// sigParser is shared by the descriptor and signature grammars. The first
// error sticks and later calls return zero values.
type sigParser struct {
	s   string
	pos int
	err error
}

func (p *sigParser) fail(reason string) {
	if p.err == nil {
		p.err = &UnsupportedSignatureError{Signature: p.s, Offset: p.pos, Reason: reason}
	}
	p.pos = len(p.s)
}

func (p *sigParser) peek() byte {
	if p.err != nil || p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *sigParser) next() byte {
	c := p.peek()
	if c != 0 {
		p.pos++
	}
	return c
}

func (p *sigParser) expect(c byte) {
	if p.err != nil {
		return
	}
	if p.peek() != c {
		p.fail(fmt.Sprintf("expected %q", c))
		return
	}
	p.pos++
}

// identifier reads up to one of the terminators used by the grammar.
func (p *sigParser) identifier() string {
	if p.err != nil {
		return ""
	}
	n := strings.IndexAny(p.s[p.pos:], ".;[/<>:")
	if n < 0 {
		n = len(p.s) - p.pos
	}
	if n == 0 {
		p.fail("expected identifier")
		return ""
	}
	id := p.s[p.pos : p.pos+n]
	p.pos += n
	return id
}

func (p *sigParser) typeParams() []TypeParam {
	if p.peek() != '<' {
		return nil
	}
	p.pos++
	var out []TypeParam
	for p.err == nil && p.peek() != '>' {
		tp := TypeParam{Name: p.identifier()}
		p.expect(':')
		if c := p.peek(); c == 'L' || c == 'T' || c == '[' {
			b := p.referenceType()
			tp.ClassBound = &b
		}
		for p.err == nil && p.peek() == ':' {
			p.pos++
			tp.InterfaceBounds = append(tp.InterfaceBounds, p.referenceType())
		}
		out = append(out, tp)
	}
	p.expect('>')
	if p.err == nil && len(out) == 0 {
		p.fail("empty type parameter list")
	}
	return out
}

func (p *sigParser) javaType() TypeUse {
	switch p.peek() {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return TypeUse{Kind: KindBase, Name: string(p.next())}
	}
	return p.referenceType()
}

func (p *sigParser) referenceType() TypeUse {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		return p.typeVar()
	case '[':
		p.pos++
		elem := p.javaType()
		return TypeUse{Kind: KindArray, Elem: &elem}
	case 0:
		p.fail("unexpected end of signature")
	default:
		p.fail(fmt.Sprintf("unexpected %q", p.peek()))
	}
	return TypeUse{}
}

func (p *sigParser) typeVar() TypeUse {
	p.expect('T')
	name := p.identifier()
	p.expect(';')
	return TypeUse{Kind: KindTypeVar, Name: name}
}

// classType parses "L" pkg/Outer<args>.Inner<args> ";". Nested classes hang
// off Inner with their binary names (Outer$Inner).
func (p *sigParser) classType() TypeUse {
	p.expect('L')
	var name string
	for p.err == nil {
		name += p.identifier()
		if p.peek() != '/' {
			break
		}
		p.pos++
		name += "/"
	}
	root := TypeUse{Kind: KindClass, Name: name, Args: p.typeArgs()}
	cur := &root
	for p.err == nil && p.peek() == '.' {
		p.pos++
		name = name + "$" + p.identifier()
		cur.Inner = &TypeUse{Kind: KindClass, Name: name, Args: p.typeArgs()}
		cur = cur.Inner
	}
	p.expect(';')
	return root
}

func (p *sigParser) typeArgs() []TypeUse {
	if p.peek() != '<' {
		return nil
	}
	p.pos++
	var out []TypeUse
	for p.err == nil && p.peek() != '>' {
		switch p.peek() {
		case '*':
			p.pos++
			out = append(out, TypeUse{Kind: KindWildcard, Variance: Unbounded})
		case '+', '-':
			v := Extends
			if p.next() == '-' {
				v = Super
			}
			b := p.referenceType()
			out = append(out, TypeUse{Kind: KindWildcard, Variance: v, Bound: &b})
		default:
			out = append(out, p.referenceType())
		}
	}
	p.expect('>')
	if p.err == nil && len(out) == 0 {
		p.fail("empty type argument list")
	}
	return out
}
