package classfile

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

// ConstantKind is the tag of a constant pool entry.
type ConstantKind uint8

// Constant pool tags.
const (
	ConstantUTF8               ConstantKind = 1
	ConstantInteger            ConstantKind = 3
	ConstantFloat              ConstantKind = 4
	ConstantLong               ConstantKind = 5
	ConstantDouble             ConstantKind = 6
	ConstantClass              ConstantKind = 7
	ConstantString             ConstantKind = 8
	ConstantFieldref           ConstantKind = 9
	ConstantMethodref          ConstantKind = 10
	ConstantInterfaceMethodref ConstantKind = 11
	ConstantNameAndType        ConstantKind = 12
	ConstantMethodHandle       ConstantKind = 15
	ConstantMethodType         ConstantKind = 16
	ConstantDynamic            ConstantKind = 17
	ConstantInvokeDynamic      ConstantKind = 18
	ConstantModule             ConstantKind = 19
	ConstantPackage            ConstantKind = 20
)

var kindNames = map[ConstantKind]string{
	ConstantUTF8:               "Utf8",
	ConstantInteger:            "Integer",
	ConstantFloat:              "Float",
	ConstantLong:               "Long",
	ConstantDouble:             "Double",
	ConstantClass:              "Class",
	ConstantString:             "String",
	ConstantFieldref:           "Fieldref",
	ConstantMethodref:          "Methodref",
	ConstantInterfaceMethodref: "InterfaceMethodref",
	ConstantNameAndType:        "NameAndType",
	ConstantMethodHandle:       "MethodHandle",
	ConstantMethodType:         "MethodType",
	ConstantDynamic:            "Dynamic",
	ConstantInvokeDynamic:      "InvokeDynamic",
	ConstantModule:             "Module",
	ConstantPackage:            "Package",
}

func (k ConstantKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ConstantKind(%d)", uint8(k))
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Owner      string
	Name       string
	Descriptor string
	// Interface is set for InterfaceMethodref entries.
	Interface bool
}

func (m MemberRef) String() string {
	return m.Owner + "." + m.Name + m.Descriptor
}

// Method handle reference kinds.
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)

// Constant is a constant pool entry with every index already resolved.
//
// Which fields are set depends on Kind:
//   - Utf8, Class, String, MethodType, Module, Package: Text.
//   - Integer, Long: Int. Float, Double: Float.
//   - Fieldref, Methodref, InterfaceMethodref: Ref.
//   - NameAndType: Name and Descriptor.
//   - MethodHandle: RefKind and Ref.
//   - Dynamic, InvokeDynamic: Bootstrap, Name and Descriptor.
type Constant struct {
	Kind       ConstantKind
	Text       string
	Int        int64
	Float      float64
	Ref        *MemberRef
	RefKind    uint8
	Name       string
	Descriptor string
	Bootstrap  uint16

	// raw operands and file offset, used only while resolving.
	a, b   uint16
	offset int
}

// ConstantPool holds the resolved entries of a class file. Index 0 and the
// slot following each long or double are unusable, as in the JVM.
type ConstantPool struct {
	entries []Constant
}

var errBadIndex = errors.New("invalid constant pool index")

// Len returns constant_pool_count, one more than the highest index.
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// At returns the entry at index i.
func (p *ConstantPool) At(i uint16) (*Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Kind == 0 {
		return nil, fmt.Errorf("%w %d", errBadIndex, i)
	}
	return &p.entries[i], nil
}

func (p *ConstantPool) expect(i uint16, kinds ...ConstantKind) (*Constant, error) {
	c, err := p.At(i)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if c.Kind == k {
			return c, nil
		}
	}
	return nil, fmt.Errorf("constant %d is %s, want %v", i, c.Kind, kinds)
}

// UTF8 returns the text of a Utf8 entry.
func (p *ConstantPool) UTF8(i uint16) (string, error) {
	c, err := p.expect(i, ConstantUTF8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the internal name of a Class entry.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, ConstantClass)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// OptionalClassName is ClassName but maps index 0 to "".
func (p *ConstantPool) OptionalClassName(i uint16) (string, error) {
	if i == 0 {
		return "", nil
	}
	return p.ClassName(i)
}

// Member returns a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstantPool) Member(i uint16) (MemberRef, error) {
	c, err := p.expect(i, ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	return *c.Ref, nil
}

// Loadable returns an entry usable by ldc, ldc_w, ldc2_w and as a bootstrap
// argument.
func (p *ConstantPool) Loadable(i uint16) (Constant, error) {
	c, err := p.expect(i, ConstantInteger, ConstantFloat, ConstantLong, ConstantDouble,
		ConstantClass, ConstantString, ConstantMethodHandle, ConstantMethodType, ConstantDynamic)
	if err != nil {
		return Constant{}, err
	}
	return *c, nil
}

// InvokeDynamic returns an InvokeDynamic entry.
func (p *ConstantPool) InvokeDynamic(i uint16) (Constant, error) {
	c, err := p.expect(i, ConstantInvokeDynamic)
	if err != nil {
		return Constant{}, err
	}
	return *c, nil
}

func readConstantPool(r *reader) *ConstantPool {
	count := int(r.u2())
	if r.err == nil && count == 0 {
		r.failf("constant_pool_count is zero")
	}
	p := &ConstantPool{entries: make([]Constant, count)}
	for i := 1; i < count && r.err == nil; i++ {
		c := Constant{Kind: ConstantKind(r.u1()), offset: r.offset() - 1}
		switch c.Kind {
		case ConstantUTF8:
			n := int(r.u2())
			raw := r.bytes(n)
			if r.err != nil {
				break
			}
			s, err := decodeModifiedUTF8(raw)
			r.check(err)
			c.Text = s
		case ConstantInteger:
			c.Int = int64(int32(r.u4()))
		case ConstantFloat:
			c.Float = float64(math.Float32frombits(r.u4()))
		case ConstantLong:
			hi, lo := r.u4(), r.u4()
			c.Int = int64(uint64(hi)<<32 | uint64(lo))
		case ConstantDouble:
			hi, lo := r.u4(), r.u4()
			c.Float = math.Float64frombits(uint64(hi)<<32 | uint64(lo))
		case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
			c.a = r.u2()
		case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref,
			ConstantNameAndType, ConstantDynamic, ConstantInvokeDynamic:
			c.a, c.b = r.u2(), r.u2()
		case ConstantMethodHandle:
			c.RefKind = r.u1()
			c.a = r.u2()
		default:
			r.pos--
			r.failf("unknown constant pool tag %d at index %d", uint8(c.Kind), i)
		}
		p.entries[i] = c
		if c.Kind == ConstantLong || c.Kind == ConstantDouble {
			// The following slot is unusable.
			i++
			if i >= count && r.err == nil {
				r.failf("long or double constant at index %d overflows the pool", i-1)
			}
		}
	}
	if r.err != nil {
		return nil
	}
	if err := p.resolve(); err != nil {
		r.err = err
		return nil
	}
	return p
}

// resolve replaces raw indices with their targets in dependency order so no
// later stage needs to look at raw indices again.
func (p *ConstantPool) resolve() error {
	passes := [][]ConstantKind{
		{ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage, ConstantNameAndType},
		{ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref, ConstantDynamic, ConstantInvokeDynamic},
		{ConstantMethodHandle},
	}
	for _, kinds := range passes {
		for i := range p.entries {
			c := &p.entries[i]
			if !containsKind(kinds, c.Kind) {
				continue
			}
			if err := p.resolveEntry(c); err != nil {
				return &MalformedClassError{
					Reason: fmt.Sprintf("constant %d (%s): %v", i, c.Kind, err),
					Offset: c.offset,
				}
			}
		}
	}
	return nil
}

func (p *ConstantPool) resolveEntry(c *Constant) error {
	var err error
	switch c.Kind {
	case ConstantClass, ConstantString, ConstantMethodType, ConstantModule, ConstantPackage:
		c.Text, err = p.UTF8(c.a)
	case ConstantNameAndType:
		if c.Name, err = p.UTF8(c.a); err != nil {
			return err
		}
		c.Descriptor, err = p.UTF8(c.b)
	case ConstantFieldref, ConstantMethodref, ConstantInterfaceMethodref:
		owner, err := p.ClassName(c.a)
		if err != nil {
			return err
		}
		nat, err := p.expect(c.b, ConstantNameAndType)
		if err != nil {
			return err
		}
		c.Ref = &MemberRef{
			Owner:      owner,
			Name:       nat.Name,
			Descriptor: nat.Descriptor,
			Interface:  c.Kind == ConstantInterfaceMethodref,
		}
	case ConstantDynamic, ConstantInvokeDynamic:
		nat, err := p.expect(c.b, ConstantNameAndType)
		if err != nil {
			return err
		}
		c.Bootstrap = c.a
		c.Name, c.Descriptor = nat.Name, nat.Descriptor
	case ConstantMethodHandle:
		if c.RefKind < 1 || c.RefKind > 9 {
			return fmt.Errorf("invalid reference kind %d", c.RefKind)
		}
		m, err := p.Member(c.a)
		if err != nil {
			return err
		}
		c.Ref = &m
	}
	return err
}

func containsKind(kinds []ConstantKind, k ConstantKind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8 encoding, where NUL is
// two bytes and supplementary characters are encoded as surrogate pairs.
func decodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0:
			return "", fmt.Errorf("NUL byte in modified UTF-8 at %d", i)
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("bad 2-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("bad 3-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("invalid modified UTF-8 byte 0x%02x at %d", c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}
