package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/pkg/ir"
)

func TestComputeTypeName(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{name: "base type", desc: "I", want: "int"},
		{name: "boolean", desc: "Z", want: "boolean"},
		{name: "class", desc: "Ljava/lang/String;", want: "java.lang.String"},
		{name: "nested class", desc: "Lp/Outer$Inner;", want: "p.Outer$Inner"},
		{name: "array", desc: "[[J", want: "long[][]"},
		{name: "class array", desc: "[Ljava/lang/Object;", want: "java.lang.Object[]"},
		{name: "empty", desc: "", want: ""},
		{name: "not a descriptor", desc: "Q", want: "Q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nameCache := NewNameCache()
			require.Equal(t, tt.want, nameCache.ComputeTypeName(tt.desc))
			// Second lookup is served from the cache.
			require.Equal(t, tt.want, nameCache.ComputeTypeName(tt.desc))
		})
	}
}

func TestComputeMethodName(t *testing.T) {
	tests := []struct {
		name   string
		method *ir.Method
		want   string
	}{
		{
			name:   "no parameters",
			method: &ir.Method{Owner: "p/Foo", Name: "run", Descriptor: "()V"},
			want:   "p.Foo.run()",
		},
		{
			name:   "mixed parameters",
			method: &ir.Method{Owner: "p/Foo", Name: "put", Descriptor: "(ILjava/lang/String;[JLjava/util/Map;)Z"},
			want:   "p.Foo.put(int, java.lang.String, long[], java.util.Map)",
		},
		{
			name:   "constructor",
			method: &ir.Method{Owner: "p/Outer$Inner", Name: "<init>", Descriptor: "(Lp/Outer;)V"},
			want:   "p.Outer$Inner.Inner(p.Outer)",
		},
		{
			name:   "static initializer",
			method: &ir.Method{Owner: "Foo", Name: "<clinit>", Descriptor: "()V"},
			want:   "Foo.<clinit>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nameCache := NewNameCache()
			require.Equal(t, tt.want, nameCache.ComputeMethodName(tt.method))
			require.Equal(t, tt.want, nameCache.ComputeMethodName(tt.method))
		})
	}
}

func TestComputeMethodNameWithNil(t *testing.T) {
	nameCache := NewNameCache()
	require.Empty(t, nameCache.ComputeMethodName(nil))
}
