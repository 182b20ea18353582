package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

func suppressWarnings(values ...string) classfile.Annotation {
	elems := make([]classfile.ElementValue, len(values))
	for i, v := range values {
		elems[i] = classfile.ElementValue{Tag: 's', Const: v}
	}
	return classfile.Annotation{
		Type: "Ljava/lang/SuppressWarnings;",
		Elements: []classfile.ElementValuePair{{
			Name:  "value",
			Value: classfile.ElementValue{Tag: '[', Array: elems},
		}},
	}
}

// TestMethodInfo_NewMethodInfo tests the creation of new MethodInfo instances.
func TestMethodInfo_NewMethodInfo(t *testing.T) {
	tests := []struct {
		name             string
		classAccess      uint16
		methodAccess     uint16
		annotations      []classfile.Annotation
		expectedExported bool
		expectedSuppress bool
	}{
		{
			name:             "public method in public class",
			classAccess:      classfile.AccPublic,
			methodAccess:     classfile.AccPublic,
			expectedExported: true,
		},
		{
			name:             "protected method in public class",
			classAccess:      classfile.AccPublic,
			methodAccess:     classfile.AccProtected,
			expectedExported: true,
		},
		{
			name:         "public method in package-private class",
			methodAccess: classfile.AccPublic,
		},
		{
			name:         "private method in public class",
			classAccess:  classfile.AccPublic,
			methodAccess: classfile.AccPrivate,
		},
		{
			name:             "suppressed as unused",
			methodAccess:     classfile.AccPrivate,
			annotations:      []classfile.Annotation{suppressWarnings("unchecked", "unused")},
			expectedSuppress: true,
		},
		{
			name:             "suppressed by rule id",
			methodAccess:     classfile.AccPrivate,
			annotations:      []classfile.Annotation{suppressWarnings("DEAD_CODE")},
			expectedSuppress: true,
		},
		{
			name:         "unrelated suppression",
			methodAccess: classfile.AccPrivate,
			annotations:  []classfile.Annotation{suppressWarnings("rawtypes")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ir.Class{Name: "p/Foo", Access: tt.classAccess}
			m := &ir.Method{Owner: "p/Foo", Name: "run", Descriptor: "()V", Access: tt.methodAccess, HasCode: true, Annotations: tt.annotations}
			mi := NewMethodInfo(c, m, "DEAD_CODE", NewNameCache())

			require.Equal(t, "p.Foo.run()", mi.Name)
			require.Equal(t, tt.expectedExported, mi.IsExported)
			require.Equal(t, tt.expectedSuppress, mi.IsSuppressed)
			require.False(t, mi.IsUsed)
		})
	}
}

func TestMethodInfo_ShouldReport(t *testing.T) {
	tests := []struct {
		name     string
		info     MethodInfo
		expected bool
	}{
		{
			name:     "unused private method",
			info:     MethodInfo{Method: &ir.Method{Name: "helper"}, HasBody: true},
			expected: true,
		},
		{
			name: "used method",
			info: MethodInfo{Method: &ir.Method{Name: "helper"}, HasBody: true, IsUsed: true},
		},
		{
			name: "exported method",
			info: MethodInfo{Method: &ir.Method{Name: "api"}, HasBody: true, IsExported: true},
		},
		{
			name: "suppressed method",
			info: MethodInfo{Method: &ir.Method{Name: "helper"}, HasBody: true, IsSuppressed: true},
		},
		{
			name: "synthetic accessor",
			info: MethodInfo{Method: &ir.Method{Name: "access$000"}, HasBody: true, IsCompilerGenerated: true},
		},
		{
			name: "lambda body",
			info: MethodInfo{Method: &ir.Method{Name: "lambda$run$0"}, HasBody: true, IsLambdaBody: true},
		},
		{
			name: "abstract method",
			info: MethodInfo{Method: &ir.Method{Name: "helper"}},
		},
		{
			name: "override of an unloaded supertype",
			info: MethodInfo{Method: &ir.Method{Name: "run"}, HasBody: true, IsOverride: true},
		},
		{
			name: "private constructor",
			info: MethodInfo{Method: &ir.Method{Name: "<init>"}, HasBody: true},
		},
		{
			name: "enum valueOf",
			info: MethodInfo{Method: &ir.Method{Name: "valueOf"}, Class: &ir.Class{Super: "java/lang/Enum"}, HasBody: true},
		},
		{
			name:     "valueOf outside an enum",
			info:     MethodInfo{Method: &ir.Method{Name: "valueOf"}, Class: &ir.Class{Super: "java/lang/Object"}, HasBody: true},
			expected: true,
		},
		{
			name: "missing method",
			info: MethodInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.info.ShouldReport())
		})
	}
}

func TestSuppresses_ClassLevel(t *testing.T) {
	c := &ir.Class{Name: "p/Foo", Annotations: []classfile.Annotation{suppressWarnings("all")}}
	m := &ir.Method{Owner: "p/Foo", Name: "run", Descriptor: "()V", HasCode: true}
	require.True(t, NewMethodInfo(c, m, "DEAD_CODE", NewNameCache()).IsSuppressed)
	require.False(t, Suppresses(nil, "DEAD_CODE"))
}
