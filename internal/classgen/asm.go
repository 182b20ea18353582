package classgen

import (
	"fmt"
	"strconv"
	"strings"
)

var mnemonics = strings.Fields(`
nop aconst_null iconst_m1 iconst_0 iconst_1 iconst_2 iconst_3 iconst_4 iconst_5
lconst_0 lconst_1 fconst_0 fconst_1 fconst_2 dconst_0 dconst_1 bipush sipush
ldc ldc_w ldc2_w iload lload fload dload aload iload_0 iload_1 iload_2 iload_3
lload_0 lload_1 lload_2 lload_3 fload_0 fload_1 fload_2 fload_3 dload_0 dload_1
dload_2 dload_3 aload_0 aload_1 aload_2 aload_3 iaload laload faload daload
aaload baload caload saload istore lstore fstore dstore astore istore_0 istore_1
istore_2 istore_3 lstore_0 lstore_1 lstore_2 lstore_3 fstore_0 fstore_1 fstore_2
fstore_3 dstore_0 dstore_1 dstore_2 dstore_3 astore_0 astore_1 astore_2 astore_3
iastore lastore fastore dastore aastore bastore castore sastore pop pop2 dup
dup_x1 dup_x2 dup2 dup2_x1 dup2_x2 swap iadd ladd fadd dadd isub lsub fsub dsub
imul lmul fmul dmul idiv ldiv fdiv ddiv irem lrem frem drem ineg lneg fneg dneg
ishl lshl ishr lshr iushr lushr iand land ior lor ixor lxor iinc i2l i2f i2d l2i
l2f l2d f2i f2l f2d d2i d2l d2f i2b i2c i2s lcmp fcmpl fcmpg dcmpl dcmpg ifeq
ifne iflt ifge ifgt ifle if_icmpeq if_icmpne if_icmplt if_icmpge if_icmpgt
if_icmple if_acmpeq if_acmpne goto jsr ret tableswitch lookupswitch ireturn
lreturn freturn dreturn areturn return getstatic putstatic getfield putfield
invokevirtual invokespecial invokestatic invokeinterface invokedynamic new
newarray anewarray arraylength athrow checkcast instanceof monitorenter
monitorexit wide multianewarray ifnull ifnonnull goto_w jsr_w`)

var opcodeByName = func() map[string]byte {
	m := make(map[string]byte, len(mnemonics))
	for i, n := range mnemonics {
		m[n] = byte(i)
	}
	return m
}()

var arrayTypes = map[string]byte{
	"boolean": 4, "char": 5, "float": 6, "double": 7,
	"byte": 8, "short": 9, "int": 10, "long": 11,
}

type asmLine struct {
	label  string
	op     string
	args   []string
	offset int
	lineNo int
}

// Assemble translates assembler source into bytecode, interning constants in
// b. It returns the bytecode and the offset of every label.
//
// One instruction per line; "name:" defines a label and "#" starts a comment.
// Member references are written owner.name(desc)ret for methods and
// owner.name:desc for fields.
func Assemble(b *ClassBuilder, src string) ([]byte, map[string]int, error) {
	lines, err := parseAsm(src)
	if err != nil {
		return nil, nil, err
	}
	labels := make(map[string]int)
	offset := 0
	for i := range lines {
		l := &lines[i]
		l.offset = offset
		if l.label != "" {
			if _, dup := labels[l.label]; dup {
				return nil, nil, fmt.Errorf("line %d: duplicate label %s", l.lineNo, l.label)
			}
			labels[l.label] = offset
			continue
		}
		n, err := instrLength(b, l, offset)
		if err != nil {
			return nil, nil, err
		}
		offset += n
	}

	var code []byte
	for _, l := range lines {
		if l.label != "" {
			continue
		}
		out, err := encode(b, l, labels)
		if err != nil {
			return nil, nil, err
		}
		code = append(code, out...)
	}
	return code, labels, nil
}

// MustAssemble is Assemble for fixed test sources.
func MustAssemble(b *ClassBuilder, src string) ([]byte, map[string]int) {
	code, labels, err := Assemble(b, src)
	if err != nil {
		panic(err)
	}
	return code, labels
}

func parseAsm(src string) ([]asmLine, error) {
	var out []asmLine
	for i, raw := range strings.Split(src, "\n") {
		if j := strings.Index(raw, "#"); j >= 0 {
			raw = raw[:j]
		}
		fields := tokenize(raw)
		if len(fields) == 0 {
			continue
		}
		if strings.HasSuffix(fields[0], ":") && len(fields) == 1 {
			out = append(out, asmLine{label: strings.TrimSuffix(fields[0], ":"), lineNo: i + 1})
			continue
		}
		if _, ok := opcodeByName[fields[0]]; !ok {
			return nil, fmt.Errorf("line %d: unknown mnemonic %q", i+1, fields[0])
		}
		out = append(out, asmLine{op: fields[0], args: fields[1:], lineNo: i + 1})
	}
	return out, nil
}

// tokenize splits on spaces but keeps quoted strings whole.
func tokenize(s string) []string {
	var out []string
	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return out
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return append(out, s)
			}
			out = append(out, s[:end+2])
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return append(out, s)
		}
		out = append(out, s[:end])
		s = s[end:]
	}
}

func localOp(op string) bool {
	switch op {
	case "iload", "lload", "fload", "dload", "aload",
		"istore", "lstore", "fstore", "dstore", "astore", "ret":
		return true
	}
	return false
}

func branchOp(op string) bool {
	code := opcodeByName[op]
	return (code >= 0x99 && code <= 0xa8) || code == 0xc6 || code == 0xc7
}

func instrLength(b *ClassBuilder, l *asmLine, offset int) (int, error) {
	switch {
	case localOp(l.op):
		n, err := l.intArg(0)
		if err != nil {
			return 0, err
		}
		if n > 255 {
			return 4, nil
		}
		return 2, nil
	case l.op == "iinc":
		n, err := l.intArg(0)
		if err != nil {
			return 0, err
		}
		d, err := l.intArg(1)
		if err != nil {
			return 0, err
		}
		if n > 255 || d < -128 || d > 127 {
			return 6, nil
		}
		return 3, nil
	case l.op == "ldc":
		idx, err := ldcIndex(b, l)
		if err != nil {
			return 0, err
		}
		if idx > 255 {
			return 3, nil
		}
		return 2, nil
	case l.op == "tableswitch":
		pad := (4 - (offset+1)%4) % 4
		return 1 + pad + 12 + 4*(len(l.args)-2), nil
	case l.op == "lookupswitch":
		pad := (4 - (offset+1)%4) % 4
		return 1 + pad + 8 + 8*(len(l.args)-1), nil
	case l.op == "bipush", l.op == "newarray":
		return 2, nil
	case l.op == "goto_w", l.op == "jsr_w", l.op == "invokeinterface", l.op == "invokedynamic":
		return 5, nil
	case l.op == "multianewarray":
		return 4, nil
	case l.op == "sipush", l.op == "ldc_w", l.op == "ldc2_w", branchOp(l.op):
		return 3, nil
	}
	code := opcodeByName[l.op]
	if code >= 0xb2 && code <= 0xb8 || code == 0xbb || code == 0xbd || code == 0xc0 || code == 0xc1 {
		return 3, nil
	}
	return 1, nil
}

func (l asmLine) arg(i int) (string, error) {
	if i >= len(l.args) {
		return "", fmt.Errorf("line %d: %s needs operand %d", l.lineNo, l.op, i+1)
	}
	return l.args[i], nil
}

func (l asmLine) intArg(i int) (int, error) {
	s, err := l.arg(i)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s operand %q: %w", l.lineNo, l.op, s, err)
	}
	return n, nil
}

func ldcIndex(b *ClassBuilder, l *asmLine) (uint16, error) {
	s, err := l.arg(0)
	if err != nil {
		return 0, err
	}
	switch {
	case strings.HasPrefix(s, `"`):
		return b.String(strings.Trim(s, `"`)), nil
	case s == "class":
		name, err := l.arg(1)
		if err != nil {
			return 0, err
		}
		return b.Class(name), nil
	}
	if l.op == "ldc2_w" {
		if strings.ContainsAny(s, ".eE") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, fmt.Errorf("line %d: %w", l.lineNo, err)
			}
			return b.Double(f), nil
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "L"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", l.lineNo, err)
		}
		return b.Long(n), nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", l.lineNo, err)
	}
	return b.Integer(int32(n)), nil
}

// splitMember splits "owner.name(desc)" or "owner.name:desc".
func splitMember(s string) (owner, name, desc string, err error) {
	p := strings.IndexAny(s, "(:")
	if p < 0 {
		return "", "", "", fmt.Errorf("member reference %q has no descriptor", s)
	}
	dot := strings.LastIndexByte(s[:p], '.')
	if dot < 0 {
		return "", "", "", fmt.Errorf("member reference %q has no owner", s)
	}
	desc = s[p:]
	if s[p] == ':' {
		desc = s[p+1:]
	}
	return s[:dot], s[dot+1 : p], desc, nil
}

func argSlots(desc string) int {
	n := 0
	for i := 1; i < len(desc) && desc[i] != ')'; i++ {
		switch desc[i] {
		case 'J', 'D':
			n += 2
		case 'L':
			n++
			i += strings.IndexByte(desc[i:], ';')
		case '[':
			for desc[i] == '[' {
				i++
			}
			if desc[i] == 'L' {
				i += strings.IndexByte(desc[i:], ';')
			}
			n++
		default:
			n++
		}
	}
	return n
}

func encode(b *ClassBuilder, l asmLine, labels map[string]int) ([]byte, error) {
	code := opcodeByName[l.op]
	target := func(i int) (int, error) {
		s, err := l.arg(i)
		if err != nil {
			return 0, err
		}
		off, ok := labels[s]
		if !ok {
			return 0, fmt.Errorf("line %d: undefined label %s", l.lineNo, s)
		}
		return off - l.offset, nil
	}

	switch {
	case localOp(l.op):
		n, _ := l.intArg(0)
		if n > 255 {
			return u2([]byte{0xc4, code}, uint16(n)), nil
		}
		return []byte{code, byte(n)}, nil
	case l.op == "iinc":
		n, _ := l.intArg(0)
		d, _ := l.intArg(1)
		if n > 255 || d < -128 || d > 127 {
			return u2(u2([]byte{0xc4, code}, uint16(n)), uint16(int16(d))), nil
		}
		return []byte{code, byte(n), byte(int8(d))}, nil
	case l.op == "bipush":
		n, err := l.intArg(0)
		return []byte{code, byte(int8(n))}, err
	case l.op == "sipush":
		n, err := l.intArg(0)
		return u2([]byte{code}, uint16(int16(n))), err
	case l.op == "newarray":
		s, err := l.arg(0)
		if err != nil {
			return nil, err
		}
		t, ok := arrayTypes[s]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown array type %s", l.lineNo, s)
		}
		return []byte{code, t}, nil
	case l.op == "ldc", l.op == "ldc_w", l.op == "ldc2_w":
		idx, err := ldcIndex(b, &l)
		if err != nil {
			return nil, err
		}
		if l.op == "ldc" {
			if idx > 255 {
				return u2([]byte{0x13}, idx), nil
			}
			return []byte{code, byte(idx)}, nil
		}
		return u2([]byte{code}, idx), nil
	case branchOp(l.op):
		rel, err := target(0)
		return u2([]byte{code}, uint16(int16(rel))), err
	case l.op == "goto_w", l.op == "jsr_w":
		rel, err := target(0)
		return u4([]byte{code}, uint32(int32(rel))), err
	case l.op == "tableswitch" || l.op == "lookupswitch":
		return encodeSwitch(l, code, labels)
	case code >= 0xb2 && code <= 0xb5:
		s, err := l.arg(0)
		if err != nil {
			return nil, err
		}
		owner, name, desc, err := splitMember(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.lineNo, err)
		}
		return u2([]byte{code}, b.Fieldref(owner, name, desc)), nil
	case code >= 0xb6 && code <= 0xb9:
		s, err := l.arg(0)
		if err != nil {
			return nil, err
		}
		owner, name, desc, err := splitMember(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.lineNo, err)
		}
		if code == 0xb9 {
			ref := b.InterfaceMethodref(owner, name, desc)
			return []byte{code, byte(ref >> 8), byte(ref), byte(argSlots(desc) + 1), 0}, nil
		}
		ref := b.Methodref(owner, name, desc)
		if len(l.args) > 1 && l.args[1] == "interface" {
			ref = b.InterfaceMethodref(owner, name, desc)
		}
		return u2([]byte{code}, ref), nil
	case code == 0xba:
		bsm, err := l.intArg(0)
		if err != nil {
			return nil, err
		}
		s, err := l.arg(1)
		if err != nil {
			return nil, err
		}
		p := strings.IndexByte(s, '(')
		if p < 0 {
			return nil, fmt.Errorf("line %d: invokedynamic needs name(desc)", l.lineNo)
		}
		idx := b.InvokeDynamic(uint16(bsm), s[:p], s[p:])
		return []byte{code, byte(idx >> 8), byte(idx), 0, 0}, nil
	case code == 0xbb || code == 0xbd || code == 0xc0 || code == 0xc1:
		s, err := l.arg(0)
		if err != nil {
			return nil, err
		}
		return u2([]byte{code}, b.Class(s)), nil
	case code == 0xc5:
		s, err := l.arg(0)
		if err != nil {
			return nil, err
		}
		dims, err := l.intArg(1)
		if err != nil {
			return nil, err
		}
		return append(u2([]byte{code}, b.Class(s)), byte(dims)), nil
	}
	return []byte{code}, nil
}

// encodeSwitch writes tableswitch "low default t0 t1 ..." and lookupswitch
// "default key:target ...".
func encodeSwitch(l asmLine, code byte, labels map[string]int) ([]byte, error) {
	rel := func(name string) (int, error) {
		off, ok := labels[name]
		if !ok {
			return 0, fmt.Errorf("line %d: undefined label %s", l.lineNo, name)
		}
		return off - l.offset, nil
	}
	out := []byte{code}
	for (l.offset+len(out))%4 != 0 {
		out = append(out, 0)
	}
	if code == 0xaa {
		low, err := l.intArg(0)
		if err != nil {
			return nil, err
		}
		if len(l.args) < 3 {
			return nil, fmt.Errorf("line %d: tableswitch needs low, default and targets", l.lineNo)
		}
		def, err := rel(l.args[1])
		if err != nil {
			return nil, err
		}
		n := len(l.args) - 2
		out = u4(u4(u4(out, uint32(int32(def))), uint32(int32(low))), uint32(int32(low+n-1)))
		for _, name := range l.args[2:] {
			r, err := rel(name)
			if err != nil {
				return nil, err
			}
			out = u4(out, uint32(int32(r)))
		}
		return out, nil
	}
	if len(l.args) < 1 {
		return nil, fmt.Errorf("line %d: lookupswitch needs a default", l.lineNo)
	}
	def, err := rel(l.args[0])
	if err != nil {
		return nil, err
	}
	out = u4(u4(out, uint32(int32(def))), uint32(len(l.args)-1))
	for _, pair := range l.args[1:] {
		key, label, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: lookupswitch pair %q", l.lineNo, pair)
		}
		k, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.lineNo, err)
		}
		r, err := rel(label)
		if err != nil {
			return nil, err
		}
		out = u4(u4(out, uint32(int32(k))), uint32(int32(r)))
	}
	return out, nil
}
