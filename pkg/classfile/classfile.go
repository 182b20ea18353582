// Package classfile decodes JVM class files into structured records.
//
// Parse is a pure transform: it validates the header, resolves every constant
// pool index up front and decodes the attributes later stages depend on.
// Failures are reported as *MalformedClassError carrying the byte offset.
package classfile

import (
	"strconv"
)

// Magic is the class file magic number.
const Magic = 0xCAFEBABE

// Supported class file major versions (Java 1.1 through Java 25).
const (
	MinMajorVersion = 45
	MaxMajorVersion = 69
)

// Access flags. Several values are shared between class, field and method
// contexts, as in the JVM specification.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccBridge       uint16 = 0x0040
	AccTransient    uint16 = 0x0080
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
	AccModule       uint16 = 0x8000
)

// Member is a field or method.
type Member struct {
	Access     uint16
	Name       string
	Descriptor string
	Attributes Attributes
}

// ClassFile is the decoded form of one class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Access       uint16
	Name         string
	// Super is empty only for java/lang/Object and module-info.
	Super      string
	Interfaces []string
	Fields     []Member
	Methods    []Member
	Attributes Attributes
	Pool       *ConstantPool
}

// Parse decodes class file bytes.
func Parse(data []byte) (*ClassFile, error) {
	r := newReader(data, 0)
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, &MalformedClassError{Reason: "bad magic 0x" + strconv.FormatUint(uint64(magic), 16), Offset: 0}
	}
	cf := &ClassFile{
		MinorVersion: r.u2(),
		MajorVersion: r.u2(),
	}
	if r.err == nil && (cf.MajorVersion < MinMajorVersion || cf.MajorVersion > MaxMajorVersion) {
		return nil, &MalformedClassError{
			Reason: "unsupported class file version " + strconv.Itoa(int(cf.MajorVersion)) + "." + strconv.Itoa(int(cf.MinorVersion)),
			Offset: 6,
		}
	}

	cf.Pool = readConstantPool(r)
	if r.err != nil {
		return nil, r.err
	}

	cf.Access = r.u2()
	var err error
	cf.Name, err = cf.Pool.ClassName(r.u2())
	r.check(err)
	cf.Super, err = cf.Pool.OptionalClassName(r.u2())
	r.check(err)
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name, err := cf.Pool.ClassName(r.u2())
		r.check(err)
		cf.Interfaces = append(cf.Interfaces, name)
	}
	cf.Fields = readMembers(r, cf.Pool, attrOnField)
	cf.Methods = readMembers(r, cf.Pool, attrOnMethod)
	cf.Attributes = readAttributes(r, cf.Pool, attrOnClass)
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		r.failf("%d trailing bytes after class file", r.remaining())
		return nil, r.err
	}
	return cf, nil
}

func readMembers(r *reader, pool *ConstantPool, on attrTarget) []Member {
	n := int(r.u2())
	members := make([]Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := Member{Access: r.u2()}
		var err error
		if m.Name, err = pool.UTF8(r.u2()); err == nil {
			m.Descriptor, err = pool.UTF8(r.u2())
		}
		r.check(err)
		m.Attributes = readAttributes(r, pool, on)
		members = append(members, m)
	}
	return members
}

// IsInterface reports whether the class is an interface.
func (cf *ClassFile) IsInterface() bool {
	return cf.Access&AccInterface != 0
}

func constantText(c *Constant) string {
	switch c.Kind {
	case ConstantInteger, ConstantLong:
		return strconv.FormatInt(c.Int, 10)
	case ConstantFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 32)
	case ConstantDouble:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	}
	return c.Text
}
