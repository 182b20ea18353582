package nullness_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
	"github.com/715d/classflow/pkg/nullness"
)

type method struct {
	access    uint16
	name      string
	desc      string
	signature string
	src       string
	tas       []classgen.TypeAnnotation
}

// add assembles m into b and returns its labels.
func add(b *classgen.ClassBuilder, m method) map[string]int {
	cm := classgen.Method{
		Access: m.access, Name: m.name, Descriptor: m.desc,
		Signature: m.signature, TypeAnnotations: m.tas,
	}
	var labels map[string]int
	if m.src != "" {
		var code []byte
		code, labels = classgen.MustAssemble(b, m.src)
		cm.Code = &classgen.Code{MaxStack: 4, MaxLocals: 4, Bytecode: code}
	}
	b.AddMethod(cm)
	return labels
}

func universe(t *testing.T, builders ...*classgen.ClassBuilder) *hierarchy.Universe {
	t.Helper()
	var classes []*ir.Class
	for _, b := range builders {
		cf, err := classfile.Parse(b.Bytes())
		require.NoError(t, err)
		c, err := ir.Build(cf, ir.BuildOptions{})
		require.NoError(t, err)
		classes = append(classes, c)
	}
	return hierarchy.NewUniverse(classes)
}

func analyze(t *testing.T, u *hierarchy.Universe, class, name string) *nullness.Result {
	t.Helper()
	return analyzeWith(t, u, class, name, dataflow.DefaultLimits())
}

func analyzeWith(t *testing.T, u *hierarchy.Universe, class, name string, limits dataflow.Limits) *nullness.Result {
	t.Helper()
	c, ok := u.Class(class)
	require.True(t, ok)
	for _, m := range c.Methods {
		if m.Name != name {
			continue
		}
		g, err := cfg.Build(m)
		require.NoError(t, err)
		r, err := nullness.Analyze(nullness.NewResolver(u), c, g, limits)
		require.NoError(t, err)
		return r
	}
	t.Fatalf("no method %s in %s", name, class)
	return nil
}

func messages(r *nullness.Result) []string {
	var out []string
	for _, is := range r.Issues {
		out = append(out, is.Message)
	}
	return out
}

func TestAnalyze_ReturnNull(t *testing.T) {
	tests := []struct {
		name      string
		marked    bool
		tas       []classgen.TypeAnnotation
		wantIssue bool
	}{
		{name: "explicit non-null return", tas: []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Type: classgen.NonNull}}, wantIssue: true},
		{name: "null-marked class", marked: true, wantIssue: true},
		{name: "nullable return in marked class", marked: true, tas: []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Type: classgen.Nullable}}},
		{name: "unmarked class", wantIssue: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classgen.New("p/S", "java/lang/Object")
			if tt.marked {
				b.Annotate(classgen.NullMarked)
			}
			labels := add(b, method{
				access: classgen.Public, name: "name", desc: "()Ljava/lang/String;", tas: tt.tas,
				src: "aconst_null\nLret:\nareturn",
			})
			r := analyze(t, universe(t, b), "p/S", "name")

			f, ok := r.StateAt(labels["Lret"])
			require.True(t, ok)
			require.Equal(t, ir.Nullable, f.Peek(0).Nullness)
			if !tt.wantIssue {
				require.Empty(t, r.Issues)
				return
			}
			require.Equal(t, []nullness.Issue{{
				Offset:  labels["Lret"],
				Message: "Nullness issue: p/S.name()Ljava/lang/String; returns null but is @NonNull",
			}}, r.Issues)
		})
	}
}

func TestAnalyze_VisitBudget(t *testing.T) {
	b := classgen.New("p/L", "java/lang/Object")
	add(b, method{
		access: classgen.Public | classgen.Static, name: "last", desc: "(I)I",
		src: `
			aconst_null
			astore_1
		Lhead:
			iload_0
			ifeq Lexit
			ldc "a"
			astore_1
			iinc 0 -1
			goto Lhead
		Lexit:
			aload_1
			invokevirtual java/lang/String.length()I
			ireturn
		`,
	})
	u := universe(t, b)

	r := analyze(t, u, "p/L", "last")
	require.Nil(t, r.Flow.Budget)
	require.Empty(t, r.Issues, "null and non-null join to unknown at the loop head")

	r = analyzeWith(t, u, "p/L", "last", dataflow.Limits{MaxStack: 8, MaxLocals: 8, MaxVisits: 2})
	require.NotNil(t, r.Flow.Budget)
	require.Equal(t, "max_block_visits", r.Flow.Budget.Limit)
	require.Empty(t, r.Issues, "%v", messages(r))
}

// box returns Box<T> with T get(), and NullableBox extending
// Box<@Nullable String>.
func box() (*classgen.ClassBuilder, *classgen.ClassBuilder) {
	b := classgen.New("p/Box", "java/lang/Object").Signature("<T:Ljava/lang/Object;>Ljava/lang/Object;")
	add(b, method{
		access: classgen.Public, name: "get", desc: "()Ljava/lang/Object;", signature: "()TT;",
		src: "aconst_null\nareturn",
	})
	sub := classgen.New("p/NullableBox", "p/Box").
		Signature("Lp/Box<Ljava/lang/String;>;").
		TypeAnnotate(classgen.TypeAnnotation{Target: classgen.TargetSupertype, Index: 0xFFFF, Path: "0;", Type: classgen.Nullable})
	return b, sub
}

const useBox = `
	aload_0
	invokevirtual %s.get()Ljava/lang/Object;
	checkcast java/lang/String
Lcall:
	invokevirtual java/lang/String.length()I
	ireturn
`

func TestAnalyze_GenericReturn(t *testing.T) {
	tests := []struct {
		name      string
		desc      string
		signature string
		owner     string
		argType   string
		want      ir.Nullness
	}{
		{name: "nullable type argument", desc: "(Lp/Box;)I", signature: "(Lp/Box<Ljava/lang/String;>;)I", owner: "p/Box", argType: classgen.Nullable, want: ir.Nullable},
		{name: "non-null type argument", desc: "(Lp/Box;)I", signature: "(Lp/Box<Ljava/lang/String;>;)I", owner: "p/Box", argType: classgen.NonNull, want: ir.NonNull},
		{name: "unannotated type argument", desc: "(Lp/Box;)I", signature: "(Lp/Box<Ljava/lang/String;>;)I", owner: "p/Box", want: ir.Unknown},
		{name: "raw receiver", desc: "(Lp/Box;)I", owner: "p/Box", want: ir.Unknown},
		{name: "through generic superclass", desc: "(Lp/NullableBox;)I", owner: "p/NullableBox", want: ir.Nullable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sub := box()
			user := classgen.New("p/User", "java/lang/Object")
			m := method{
				access: classgen.Public | classgen.Static, name: "use", desc: tt.desc, signature: tt.signature,
				src: fmt.Sprintf(useBox, tt.owner),
			}
			if tt.argType != "" {
				m.tas = []classgen.TypeAnnotation{{Target: classgen.TargetParameter, Index: 0, Path: "0;", Type: tt.argType}}
			}
			labels := add(user, m)
			r := analyze(t, universe(t, b, sub, user), "p/User", "use")

			f, ok := r.StateAt(labels["Lcall"])
			require.True(t, ok)
			require.Equal(t, tt.want, f.Peek(0).Nullness)
			if tt.want == ir.Nullable {
				require.Equal(t, []string{"Nullness issue: possible null receiver in call to java/lang/String.length()I"}, messages(r))
				require.Equal(t, labels["Lcall"], r.Issues[0].Offset)
			} else {
				require.Empty(t, r.Issues)
			}
		})
	}
}

func TestAnalyze_NullChecks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{
			name: "unchecked",
			src: `
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			`,
			want: 1,
		},
		{
			name: "ifnull guard",
			src: `
				aload_0
				ifnull Lnull
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			Lnull:
				iconst_0
				ireturn
			`,
		},
		{
			name: "ifnonnull guard",
			src: `
				aload_0
				ifnonnull Lok
				iconst_0
				ireturn
			Lok:
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			`,
		},
		{
			name: "comparison with null",
			src: `
				aload_0
				aconst_null
				if_acmpeq Lnull
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			Lnull:
				iconst_0
				ireturn
			`,
		},
		{
			name: "guard on the wrong branch",
			src: `
				aload_0
				ifnonnull Lok
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			Lok:
				iconst_0
				ireturn
			`,
			want: 1,
		},
		{
			name: "paths merge after the check",
			src: `
				aload_0
				ifnonnull Ljoin
				nop
			Ljoin:
				aload_0
				invokevirtual java/lang/String.length()I
				ireturn
			`,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classgen.New("p/N", "java/lang/Object")
			add(b, method{
				access: classgen.Public | classgen.Static, name: "len", desc: "(Ljava/lang/String;)I", src: tt.src,
				tas: []classgen.TypeAnnotation{{Target: classgen.TargetParameter, Index: 0, Type: classgen.Nullable}},
			})
			r := analyze(t, universe(t, b), "p/N", "len")
			require.Len(t, r.Issues, tt.want, "%v", messages(r))
		})
	}
}

func TestAnalyze_Dereferences(t *testing.T) {
	b := classgen.New("p/D", "java/lang/Object")
	b.AddField(classgen.Field{Name: "next", Descriptor: "Lp/D;"})
	add(b, method{
		access: classgen.Public | classgen.Static, name: "walk", desc: "(Lp/D;[I)I",
		tas: []classgen.TypeAnnotation{
			{Target: classgen.TargetParameter, Index: 0, Type: classgen.Nullable},
			{Target: classgen.TargetParameter, Index: 1, Type: classgen.Nullable},
		},
		src: `
			aload_0
			getfield p/D.next:Lp/D;
			pop
			aload_1
			arraylength
			ireturn
		`,
	})
	r := analyze(t, universe(t, b), "p/D", "walk")
	require.Equal(t, []string{
		"Nullness issue: possible null dereference of field p/D.next",
		"Nullness issue: possible null array access",
	}, messages(r))
}

func TestSubstitute(t *testing.T) {
	str := ir.TypeUse{Kind: ir.KindClass, Name: "java/lang/String", Nullness: ir.NonNull}
	bindings := map[string]ir.TypeUse{"T": str}

	tests := []struct {
		name           string
		in             ir.TypeUse
		wantTop        ir.Nullness
		wantUnresolved bool
	}{
		{name: "bound variable", in: ir.TypeUse{Kind: ir.KindTypeVar, Name: "T"}, wantTop: ir.NonNull},
		{name: "nullable use of a bound variable", in: ir.TypeUse{Kind: ir.KindTypeVar, Name: "T", Nullness: ir.Nullable}, wantTop: ir.Nullable},
		{name: "unbound variable", in: ir.TypeUse{Kind: ir.KindTypeVar, Name: "U"}, wantTop: ir.Unknown, wantUnresolved: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, unresolved := nullness.Substitute(tt.in, bindings)
			require.Equal(t, tt.wantTop, out.Top())
			require.Equal(t, tt.wantUnresolved, unresolved)
		})
	}

	list := ir.TypeUse{Kind: ir.KindClass, Name: "java/util/List", Args: []ir.TypeUse{{Kind: ir.KindTypeVar, Name: "T"}}}
	out, _ := nullness.Substitute(list, bindings)
	require.Equal(t, "java.util.List<@NonNull java.lang.String>", out.String())
	require.Equal(t, ir.KindTypeVar, list.Args[0].Kind, "input is not modified")
}

func TestDomain_Join(t *testing.T) {
	var d nullness.Domain
	str := &ir.TypeUse{Kind: ir.KindClass, Name: "java/lang/String"}
	values := []nullness.Value{
		nullness.Unknown,
		{Nullness: ir.NonNull, Local: -1},
		{Nullness: ir.Nullable, Local: 2, NullLiteral: true},
		{Nullness: ir.NonNull, Type: str, Local: 1},
	}
	for _, a := range values {
		require.True(t, d.Equal(a, d.Join(a, a)))
		for _, b := range values {
			require.True(t, d.Equal(d.Join(a, b), d.Join(b, a)))
			for _, c := range values {
				require.True(t, d.Equal(d.Join(d.Join(a, b), c), d.Join(a, d.Join(b, c))))
			}
		}
	}
	require.Equal(t, ir.Unknown, d.Join(values[1], values[2]).Nullness)
}

func TestCheckOverrides(t *testing.T) {
	base := classgen.New("p/Base", "java/lang/Object")
	add(base, method{
		access: classgen.Public | classgen.Abstract, name: "find", desc: "(Ljava/lang/String;)Ljava/lang/String;",
		tas: []classgen.TypeAnnotation{
			{Target: classgen.TargetReturn, Type: classgen.NonNull},
			{Target: classgen.TargetParameter, Index: 0, Type: classgen.Nullable},
		},
	})
	add(base, method{
		access: classgen.Public | classgen.Abstract, name: "all", desc: "()Ljava/util/List;",
		signature: "()Ljava/util/List<Ljava/lang/String;>;",
		tas:       []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Path: "0;", Type: classgen.NonNull}},
	})
	add(base, method{access: classgen.Public | classgen.Abstract, name: "ok", desc: "()Ljava/lang/String;"})

	derived := classgen.New("p/Derived", "p/Base")
	add(derived, method{
		access: classgen.Public, name: "find", desc: "(Ljava/lang/String;)Ljava/lang/String;",
		src: "aconst_null\nareturn",
		tas: []classgen.TypeAnnotation{
			{Target: classgen.TargetReturn, Type: classgen.Nullable},
			{Target: classgen.TargetParameter, Index: 0, Type: classgen.NonNull},
		},
	})
	add(derived, method{
		access: classgen.Public, name: "all", desc: "()Ljava/util/List;",
		signature: "()Ljava/util/List<Ljava/lang/String;>;",
		src:       "aconst_null\nareturn",
		tas:       []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Path: "0;", Type: classgen.Nullable}},
	})
	add(derived, method{
		access: classgen.Public, name: "ok", desc: "()Ljava/lang/String;",
		src: "aconst_null\nareturn",
		tas: []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Type: classgen.Nullable}},
	})

	u := universe(t, base, derived)
	c, _ := u.Class("p/Derived")
	var got []string
	for _, is := range nullness.CheckOverrides(u, c) {
		got = append(got, is.Message)
	}
	require.Equal(t, []string{
		"Nullness override: p/Derived.find(Ljava/lang/String;)Ljava/lang/String; returns @Nullable but overrides @NonNull",
		"Nullness override: p/Derived.find(Ljava/lang/String;)Ljava/lang/String; parameter 0 is @NonNull but overrides @Nullable",
		"Nullness override: p/Derived.all()Ljava/util/List; return type-use is more nullable than the overridden method",
	}, got)
}
