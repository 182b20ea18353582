package ir_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/pkg/ir"
)

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		name      string
		desc      string
		wantSlots int
		wantRet   string
		wantErr   bool
	}{
		{name: "void no args", desc: "()V", wantSlots: 0, wantRet: "void"},
		{name: "wide args", desc: "(JID)Ljava/lang/String;", wantSlots: 5, wantRet: "java.lang.String"},
		{name: "arrays", desc: "([[I[Ljava/lang/Object;)[B", wantSlots: 2, wantRet: "byte[]"},
		{name: "missing paren", desc: "I)V", wantErr: true},
		{name: "unterminated class", desc: "(Ljava/lang/String)V", wantErr: true},
		{name: "trailing", desc: "()VV", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := ir.ParseMethodDescriptor(tt.desc)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantSlots, md.ParamSlots())
			require.Equal(t, tt.wantRet, md.Return.String())
		})
	}
}

func TestParseClassSignature(t *testing.T) {
	sig, err := ir.ParseClassSignature(
		"<K:Ljava/lang/Object;V::Ljava/lang/Comparable<TV;>;>Ljava/util/AbstractMap<TK;TV;>;Ljava/io/Serializable;")
	require.NoError(t, err)

	require.Len(t, sig.TypeParams, 2)
	require.Equal(t, "K", sig.TypeParams[0].Name)
	require.NotNil(t, sig.TypeParams[0].ClassBound)
	require.Equal(t, "V", sig.TypeParams[1].Name)
	require.Nil(t, sig.TypeParams[1].ClassBound)
	require.Len(t, sig.TypeParams[1].InterfaceBounds, 1)

	require.Equal(t, "java.util.AbstractMap<K, V>", sig.Super.String())
	require.Len(t, sig.Interfaces, 1)
	require.Equal(t, "java/io/Serializable", sig.Interfaces[0].Name)
}

func TestParseMethodSignature(t *testing.T) {
	sig, err := ir.ParseMethodSignature(
		"<T:Ljava/lang/Object;>(Ljava/util/List<+TT;>;[TT;I)Ljava/util/Map$Entry<Ljava/lang/String;*>;^Ljava/io/IOException;^TT;")
	require.NoError(t, err)
	require.Len(t, sig.TypeParams, 1)
	require.Len(t, sig.Params, 3)

	wild := sig.Params[0].Args[0]
	require.Equal(t, ir.KindWildcard, wild.Kind)
	require.Equal(t, ir.Extends, wild.Variance)
	require.Equal(t, ir.KindTypeVar, wild.Bound.Kind)

	require.Equal(t, ir.KindArray, sig.Params[1].Kind)
	require.Equal(t, ir.KindBase, sig.Params[2].Kind)
	require.Equal(t, "java.util.Map$Entry<java.lang.String, ?>", sig.Return.String())
	require.Len(t, sig.Throws, 2)
}

func TestParseSignature_Nested(t *testing.T) {
	typ, err := ir.ParseFieldSignature("Lp/Outer<TT;>.Inner<Ljava/lang/String;>;")
	require.NoError(t, err)
	require.Equal(t, "p/Outer", typ.Name)
	require.NotNil(t, typ.Inner)
	require.Equal(t, "p/Outer$Inner", typ.Inner.Name)
	require.Equal(t, "p/Outer$Inner", typ.ClassName())
}

func TestParseSignature_Errors(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{name: "empty type params", sig: "<>Ljava/lang/Object;"},
		{name: "bad tag", sig: "Ljava/util/List<Q>;"},
		{name: "truncated", sig: "Ljava/util/List<TT;"},
		{name: "no super", sig: "<T:Ljava/lang/Object;>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.ParseClassSignature(tt.sig)
			require.Error(t, err)
			var se *ir.UnsupportedSignatureError
			require.True(t, errors.As(err, &se))
			require.Equal(t, tt.sig, se.Signature)
		})
	}
}

func TestNullnessJoin(t *testing.T) {
	values := []ir.Nullness{ir.Unknown, ir.NonNull, ir.Nullable}
	for _, a := range values {
		require.Equal(t, a, ir.Join(a, a), "idempotent %s", a)
		for _, b := range values {
			require.Equal(t, ir.Join(a, b), ir.Join(b, a), "commutative %s %s", a, b)
			require.True(t, ir.Leq(a, ir.Join(a, b)))
			for _, c := range values {
				require.Equal(t, ir.Join(ir.Join(a, b), c), ir.Join(a, ir.Join(b, c)))
			}
		}
	}
	require.Equal(t, ir.Unknown, ir.Join(ir.NonNull, ir.Nullable))
	require.False(t, ir.Leq(ir.NonNull, ir.Nullable))
}
