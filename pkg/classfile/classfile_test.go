package classfile_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/classfile"
)

func sampleClass(t *testing.T) []byte {
	t.Helper()
	b := classgen.New("com/example/Box", "java/lang/Object").
		Signature("<T:Ljava/lang/Object;>Ljava/lang/Object;").
		SourceFile("Box.java").
		Annotate(classgen.NullMarked).
		Implements("java/io/Serializable")
	b.Long(1 << 40)
	b.AddField(classgen.Field{
		Access:     classgen.Private,
		Name:       "value",
		Descriptor: "Ljava/lang/Object;",
		Signature:  "TT;",
	})
	code, _ := classgen.MustAssemble(b, `
		aload_0
		getfield com/example/Box.value:Ljava/lang/Object;
		areturn
	`)
	b.AddMethod(classgen.Method{
		Access:     classgen.Public,
		Name:       "get",
		Descriptor: "()Ljava/lang/Object;",
		Signature:  "()TT;",
		Code: &classgen.Code{
			MaxStack:  1,
			MaxLocals: 1,
			Bytecode:  code,
			Lines:     []classgen.Line{{PC: 0, Line: 10}, {PC: 4, Line: 11}},
		},
		TypeAnnotations: []classgen.TypeAnnotation{
			{Target: classgen.TargetReturn, Type: classgen.Nullable},
		},
		ParameterAnnotations: [][]string{},
	})
	return b.Bytes()
}

// TestParse_Sample tests decoding of a representative class.
func TestParse_Sample(t *testing.T) {
	cf, err := classfile.Parse(sampleClass(t))
	require.NoError(t, err)

	require.Equal(t, "com/example/Box", cf.Name)
	require.Equal(t, "java/lang/Object", cf.Super)
	require.Equal(t, []string{"java/io/Serializable"}, cf.Interfaces)
	require.Equal(t, uint16(61), cf.MajorVersion)
	require.Equal(t, "Box.java", cf.Attributes.SourceFile)
	require.Equal(t, "<T:Ljava/lang/Object;>Ljava/lang/Object;", cf.Attributes.Signature)
	require.Len(t, cf.Attributes.Annotations, 1)
	require.Equal(t, classgen.NullMarked, cf.Attributes.Annotations[0].Type)
	require.True(t, cf.Attributes.Annotations[0].Visible)

	require.Len(t, cf.Fields, 1)
	require.Equal(t, "TT;", cf.Fields[0].Attributes.Signature)

	require.Len(t, cf.Methods, 1)
	m := cf.Methods[0]
	require.Equal(t, "get", m.Name)
	require.NotNil(t, m.Attributes.Code)
	require.Equal(t, []byte{0x2a, 0xb4}, m.Attributes.Code.Bytecode[:2])
	require.Len(t, m.Attributes.Code.Bytecode, 5)
	require.Len(t, m.Attributes.TypeAnnotations, 1)
	require.Equal(t, classfile.TargetMethodReturn, m.Attributes.TypeAnnotations[0].TargetType)
	require.Equal(t, classgen.Nullable, m.Attributes.TypeAnnotations[0].Annotation.Type)
}

// TestParse_Deterministic tests that parsing the same bytes twice yields
// identical records.
func TestParse_Deterministic(t *testing.T) {
	data := sampleClass(t)
	first, err := classfile.Parse(data)
	require.NoError(t, err)
	second, err := classfile.Parse(data)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// TestParse_Errors tests header and structure validation.
func TestParse_Errors(t *testing.T) {
	valid := sampleClass(t)

	badVersion := append([]byte(nil), valid...)
	badVersion[6], badVersion[7] = 0, 70

	tests := []struct {
		name       string
		data       []byte
		wantReason string
		wantOffset int
	}{
		{
			name:       "empty",
			data:       nil,
			wantReason: "truncated",
			wantOffset: 0,
		},
		{
			name:       "bad magic",
			data:       []byte{0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 61},
			wantReason: "bad magic",
			wantOffset: 0,
		},
		{
			name:       "newer version",
			data:       badVersion,
			wantReason: "unsupported class file version 70.0",
			wantOffset: 6,
		},
		{
			name:       "truncated body",
			data:       valid[:len(valid)-3],
			wantReason: "truncated",
		},
		{
			name:       "trailing bytes",
			data:       append(append([]byte(nil), valid...), 0),
			wantReason: "trailing bytes",
			wantOffset: len(valid),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classfile.Parse(tt.data)
			require.Error(t, err)
			var mce *classfile.MalformedClassError
			require.True(t, errors.As(err, &mce), "want MalformedClassError, got %T", err)
			require.Contains(t, mce.Reason, tt.wantReason)
			if tt.wantOffset != 0 || tt.name == "empty" || tt.name == "bad magic" {
				require.Equal(t, tt.wantOffset, mce.Offset)
			}
		})
	}
}

// TestParse_BadConstantIndex tests that dangling constant pool indices fail.
func TestParse_BadConstantIndex(t *testing.T) {
	data := []byte{
		0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52,
		0, 2, // pool count
		7, 0, 9, // Class -> #9 which does not exist
	}
	_, err := classfile.Parse(data)
	var mce *classfile.MalformedClassError
	require.True(t, errors.As(err, &mce))
	require.Contains(t, mce.Reason, "invalid constant pool index 9")
	require.Equal(t, 10, mce.Offset)
}

// TestConstantPool_LongTakesTwoSlots tests the unusable slot after a long.
func TestConstantPool_LongTakesTwoSlots(t *testing.T) {
	b := classgen.New("p/C", "java/lang/Object")
	idx := b.Long(42)
	next := b.UTF8("after")
	require.Equal(t, idx+2, next)

	cf, err := classfile.Parse(b.Bytes())
	require.NoError(t, err)

	c, err := cf.Pool.At(idx)
	require.NoError(t, err)
	require.Equal(t, classfile.ConstantLong, c.Kind)
	require.Equal(t, int64(42), c.Int)

	_, err = cf.Pool.At(idx + 1)
	require.Error(t, err)

	s, err := cf.Pool.UTF8(next)
	require.NoError(t, err)
	require.Equal(t, "after", s)
}

// TestConstantPool_MemberAndBootstrap tests resolved member references and
// bootstrap methods.
func TestConstantPool_MemberAndBootstrap(t *testing.T) {
	b := classgen.New("p/C", "java/lang/Object")
	target := b.Methodref("p/C", "lambda$run$0", "()V")
	handle := b.MethodHandle(6, target)
	bsm := b.Bootstrap(b.MethodHandle(6, b.Methodref("java/lang/invoke/LambdaMetafactory", "metafactory", "()V")),
		b.MethodType("()V"), handle, b.MethodType("()V"))
	code, _ := classgen.MustAssemble(b, `
		invokedynamic 0 run()Ljava/lang/Runnable;
		pop
		return
	`)
	require.Equal(t, uint16(0), bsm)
	b.AddMethod(classgen.Method{
		Access: classgen.Public | classgen.Static, Name: "m", Descriptor: "()V",
		Code: &classgen.Code{MaxStack: 1, Bytecode: code},
	})
	cf, err := classfile.Parse(b.Bytes())
	require.NoError(t, err)

	ref, err := cf.Pool.Member(target)
	require.NoError(t, err)
	require.Equal(t, classfile.MemberRef{Owner: "p/C", Name: "lambda$run$0", Descriptor: "()V"}, ref)

	require.Len(t, cf.Attributes.BootstrapMethods, 1)
	bm := cf.Attributes.BootstrapMethods[0]
	require.Equal(t, "metafactory", bm.Handle.Ref.Name)
	require.Len(t, bm.Args, 3)
	require.Equal(t, classfile.ConstantMethodHandle, bm.Args[1].Kind)
	require.Equal(t, "lambda$run$0", bm.Args[1].Ref.Name)
}

// TestCode_LineForOffset tests best-effort source line lookup.
func TestCode_LineForOffset(t *testing.T) {
	code := &classfile.Code{LineNumbers: []classfile.LineNumber{
		{StartPC: 0, Line: 10},
		{StartPC: 4, Line: 12},
		{StartPC: 9, Line: 15},
	}}
	tests := []struct {
		name     string
		offset   int
		wantLine int
		wantOK   bool
	}{
		{name: "first", offset: 0, wantLine: 10, wantOK: true},
		{name: "middle", offset: 5, wantLine: 12, wantOK: true},
		{name: "exact", offset: 9, wantLine: 15, wantOK: true},
		{name: "past end", offset: 40, wantLine: 15, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := code.LineForOffset(tt.offset)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantLine, line)
		})
	}

	line, ok := (&classfile.Code{}).LineForOffset(3)
	require.False(t, ok)
	require.Zero(t, line)

	var missing *classfile.Code
	_, ok = missing.LineForOffset(0)
	require.False(t, ok)
}

// TestElementValue_Strings tests flattening of string array elements.
func TestElementValue_Strings(t *testing.T) {
	v := classfile.ElementValue{Tag: '[', Array: []classfile.ElementValue{
		{Tag: 's', Const: "NULLNESS"},
		{Tag: 's', Const: "DEAD_CODE"},
		{Tag: 'I', Const: "3"},
	}}
	require.Equal(t, []string{"NULLNESS", "DEAD_CODE"}, v.Strings())
}
