package rules_test

import (
	"context"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
	"github.com/715d/classflow/pkg/nullness"
	"github.com/715d/classflow/pkg/rules"
)

// testContext serves rules from a fixed set of classes without caching.
type testContext struct {
	u       *hierarchy.Universe
	targets []*ir.Class
}

func newContext(t *testing.T, targets []*classgen.ClassBuilder, deps ...*classgen.ClassBuilder) *testContext {
	t.Helper()
	tc := &testContext{}
	var all []*ir.Class
	for i, b := range slices.Concat(targets, deps) {
		cf, err := classfile.Parse(b.Bytes())
		require.NoError(t, err)
		c, err := ir.Build(cf, ir.BuildOptions{})
		require.NoError(t, err)
		all = append(all, c)
		if i < len(targets) {
			tc.targets = append(tc.targets, c)
		}
	}
	tc.u = hierarchy.NewUniverse(all)
	return tc
}

func (tc *testContext) Universe() *hierarchy.Universe   { return tc.u }
func (tc *testContext) CallGraph() *hierarchy.CallGraph { return hierarchy.NewCallGraph(tc.u) }
func (tc *testContext) Targets() []*ir.Class            { return tc.targets }
func (tc *testContext) Limits() dataflow.Limits         { return dataflow.DefaultLimits() }

func (tc *testContext) IsAnalysisTarget(class string) bool {
	return slices.ContainsFunc(tc.targets, func(c *ir.Class) bool { return c.Name == class })
}

func (tc *testContext) CFG(m *ir.Method) (*cfg.Graph, error) {
	return cfg.Build(m)
}

func (tc *testContext) Nullness(m *ir.Method) (*nullness.Result, error) {
	g, err := cfg.Build(m)
	if err != nil {
		return nil, err
	}
	c, _ := tc.u.Class(m.Owner)
	return nullness.Analyze(nullness.NewResolver(tc.u), c, g, tc.Limits())
}

type handler struct {
	start, end, handler string
	catchType           string
}

type method struct {
	access   uint16
	name     string
	desc     string
	src      string
	handlers []handler
	tas      []classgen.TypeAnnotation
	lines    []classgen.Line
}

// add assembles m into b and returns its labels.
func add(b *classgen.ClassBuilder, m method) map[string]int {
	cm := classgen.Method{Access: m.access, Name: m.name, Descriptor: m.desc, TypeAnnotations: m.tas}
	var labels map[string]int
	if m.src != "" {
		var code []byte
		code, labels = classgen.MustAssemble(b, m.src)
		c := &classgen.Code{MaxStack: 4, MaxLocals: 4, Bytecode: code, Lines: m.lines}
		for _, h := range m.handlers {
			c.Handlers = append(c.Handlers, classgen.Handler{
				Start: labels[h.start], End: labels[h.end], Handler: labels[h.handler], CatchType: h.catchType,
			})
		}
		cm.Code = c
	}
	b.AddMethod(cm)
	return labels
}

func run(t *testing.T, rule string, tc *testContext) []rules.Finding {
	t.Helper()
	selected, err := rules.Select(rules.All(), []string{rule}, nil)
	require.NoError(t, err)
	findings, err := rules.NewEngine(selected...).Run(context.Background(), tc)
	require.NoError(t, err)
	return findings
}

const causeMessage = "Catch handler throws a new exception without preserving the original cause; " +
	"pass the caught exception as a cause or call initCause/addSuppressed before throwing."

func TestCauseNotPreserved(t *testing.T) {
	tests := []struct {
		name      string
		catchType string
		handler   string
		wantThrow bool
	}{
		{
			name:      "message only",
			catchType: "java/lang/Exception",
			handler: `
				astore_0
				new java/lang/RuntimeException
				dup
				ldc "failed"
				invokespecial java/lang/RuntimeException.<init>(Ljava/lang/String;)V
			Lthrow:
				athrow`,
			wantThrow: true,
		},
		{
			name:      "cause passed to constructor",
			catchType: "java/lang/Exception",
			handler: `
				astore_0
				new java/lang/RuntimeException
				dup
				ldc "failed"
				aload_0
				invokespecial java/lang/RuntimeException.<init>(Ljava/lang/String;Ljava/lang/Throwable;)V
			Lthrow:
				athrow`,
		},
		{
			name:      "initCause",
			catchType: "java/lang/Exception",
			handler: `
				astore_0
				new java/lang/IllegalStateException
				dup
				invokespecial java/lang/IllegalStateException.<init>()V
				aload_0
				invokevirtual java/lang/Throwable.initCause(Ljava/lang/Throwable;)Ljava/lang/Throwable;
			Lthrow:
				athrow`,
		},
		{
			name:      "addSuppressed on a stored exception",
			catchType: "java/lang/Exception",
			handler: `
				astore_0
				new java/lang/IllegalStateException
				dup
				invokespecial java/lang/IllegalStateException.<init>()V
				astore_1
				aload_1
				aload_0
				invokevirtual java/lang/Throwable.addSuppressed(Ljava/lang/Throwable;)V
				aload_1
			Lthrow:
				athrow`,
		},
		{
			name:      "rethrow the caught exception",
			catchType: "java/lang/Exception",
			handler: `
				astore_0
				aload_0
			Lthrow:
				athrow`,
		},
		{
			name: "finally handler",
			handler: `
				astore_0
				new java/lang/RuntimeException
				dup
				invokespecial java/lang/RuntimeException.<init>()V
			Lthrow:
				athrow`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := classgen.New("p/C", "java/lang/Object")
			labels := add(b, method{
				access: classgen.Static, name: "m", desc: "()V",
				src: `
				Ltry:
					invokestatic p/C.work()V
				Lend:
					return
				Lcatch:` + tt.handler,
				handlers: []handler{{start: "Ltry", end: "Lend", handler: "Lcatch", catchType: tt.catchType}},
			})
			add(b, method{access: classgen.Static, name: "work", desc: "()V", src: "return"})

			findings := run(t, rules.CauseNotPreservedID, newContext(t, []*classgen.ClassBuilder{b}))
			if !tt.wantThrow {
				require.Empty(t, findings)
				return
			}
			require.Equal(t, []rules.Finding{{
				RuleID:     rules.CauseNotPreservedID,
				Class:      "p/C",
				Method:     "m",
				Descriptor: "()V",
				Offset:     labels["Lthrow"],
				Message:    causeMessage,
			}}, findings)
		})
	}
}

func TestCauseNotPreserved_PathJoin(t *testing.T) {
	// One path wraps the caught exception, the other does not.
	b := classgen.New("p/C", "java/lang/Object")
	labels := add(b, method{
		access: classgen.Static, name: "m", desc: "(I)V",
		src: `
		Ltry:
			invokestatic p/C.work()V
		Lend:
			return
		Lcatch:
			astore_1
			new java/lang/RuntimeException
			dup
			iload_0
			ifeq Lplain
			aload_1
			invokespecial java/lang/RuntimeException.<init>(Ljava/lang/Throwable;)V
			goto Lthrow
		Lplain:
			invokespecial java/lang/RuntimeException.<init>()V
		Lthrow:
			athrow`,
		handlers: []handler{{start: "Ltry", end: "Lend", handler: "Lcatch", catchType: "java/io/IOException"}},
	})
	add(b, method{access: classgen.Static, name: "work", desc: "()V", src: "return"})

	findings := run(t, rules.CauseNotPreservedID, newContext(t, []*classgen.ClassBuilder{b}))
	require.Len(t, findings, 1)
	require.Equal(t, labels["Lthrow"], findings[0].Offset)
}

func TestReturnInFinally(t *testing.T) {
	b := classgen.New("p/C", "java/lang/Object")
	labels := add(b, method{
		access: classgen.Static, name: "m", desc: "()I",
		src: `
		Ltry:
			invokestatic p/C.work()V
		Lend:
			iconst_1
			ireturn
		Lfinally:
			astore_0
			iconst_2
		Lret:
			ireturn`,
		handlers: []handler{{start: "Ltry", end: "Lend", handler: "Lfinally"}},
		lines:    []classgen.Line{{PC: 0, Line: 10}, {PC: 5, Line: 14}},
	})
	add(b, method{access: classgen.Static, name: "work", desc: "()V", src: "return"})
	add(b, method{
		access: classgen.Static, name: "rethrows", desc: "()V",
		src: `
		Ltry:
			invokestatic p/C.work()V
		Lend:
			return
		Lfinally:
			astore_0
			aload_0
			athrow`,
		handlers: []handler{{start: "Ltry", end: "Lend", handler: "Lfinally"}},
	})

	findings := run(t, rules.ReturnInFinallyID, newContext(t, []*classgen.ClassBuilder{b}))
	want := []rules.Finding{{
		RuleID:     rules.ReturnInFinallyID,
		Class:      "p/C",
		Method:     "m",
		Descriptor: "()I",
		Offset:     labels["Lret"],
		Message: "Return in finally overrides exceptions or prior returns. " +
			"Move the return outside the finally block or return after the try/finally.",
		Line: 14,
	}}
	if diff := cmp.Diff(want, findings); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
}

func TestNullness(t *testing.T) {
	b := classgen.New("p/S", "java/lang/Object").Access(classgen.Public | classgen.Super)
	labels := add(b, method{
		access: classgen.Public, name: "name", desc: "()Ljava/lang/String;",
		tas: []classgen.TypeAnnotation{{Target: classgen.TargetReturn, Type: classgen.NonNull}},
		src: "aconst_null\nLret:\nareturn",
	})

	findings := run(t, rules.NullnessID, newContext(t, []*classgen.ClassBuilder{b}))
	require.Equal(t, []rules.Finding{{
		RuleID:     rules.NullnessID,
		Class:      "p/S",
		Method:     "name",
		Descriptor: "()Ljava/lang/String;",
		Offset:     labels["Lret"],
		Message:    "Nullness issue: p/S.name()Ljava/lang/String; returns null but is @NonNull",
	}}, findings)
}

func TestDeadCode(t *testing.T) {
	main := classgen.New("p/Main", "java/lang/Object").Access(classgen.Public | classgen.Super)
	add(main, method{
		access: classgen.Public | classgen.Static, name: "main", desc: "([Ljava/lang/String;)V",
		src: "invokestatic p/Main.used()V\nreturn",
	})
	add(main, method{access: classgen.Private | classgen.Static, name: "used", desc: "()V", src: "return"})
	add(main, method{access: classgen.Private | classgen.Static, name: "unused", desc: "(I)V", src: "return"})
	add(main, method{access: classgen.Private | classgen.Static | classgen.Synthetic, name: "access$000", desc: "()V", src: "return"})

	job := classgen.New("p/Job", "java/lang/Object").Access(classgen.Interface | classgen.Abstract)
	add(job, method{access: classgen.Public | classgen.Abstract, name: "run", desc: "()V"})

	task := classgen.New("p/Task", "java/lang/Object").Access(classgen.Super).Implements("p/Job")
	add(task, method{access: classgen.Public, name: "run", desc: "()V", src: "return"})
	add(task, method{access: 0, name: "toString", desc: "()Ljava/lang/String;", src: "aconst_null\nareturn"})
	add(task, method{access: 0, name: "stale", desc: "()V", src: "return"})

	// Any instance method may implement an interface that is not loaded.
	hook := classgen.New("p/Hook", "java/lang/Object").Access(classgen.Super).Implements("java/lang/Runnable")
	add(hook, method{access: 0, name: "call", desc: "()V", src: "return"})
	add(hook, method{access: classgen.Private, name: "helper", desc: "()V", src: "return"})

	// Library code is loaded but never reported.
	lib := classgen.New("q/Lib", "java/lang/Object").Access(classgen.Super)
	add(lib, method{access: classgen.Private, name: "internal", desc: "()V", src: "return"})

	findings := run(t, rules.DeadCodeID, newContext(t, []*classgen.ClassBuilder{main, job, task, hook}, lib))
	var got []string
	for _, f := range findings {
		got = append(got, f.Message)
	}
	require.Equal(t, []string{
		"Unreachable method: p.Hook.helper()",
		"Unreachable method: p.Main.unused(int)",
		"Unreachable method: p.Task.stale()",
	}, got)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		enable  []string
		disable []string
		want    []string
		wantErr bool
	}{
		{name: "every rule", want: []string{"DEAD_CODE", "EXCEPTION_CAUSE_NOT_PRESERVED", "NULLNESS", "RETURN_IN_FINALLY"}},
		{name: "allow list", enable: []string{"NULLNESS"}, want: []string{"NULLNESS"}},
		{name: "deny list", disable: []string{"DEAD_CODE", "NULLNESS"}, want: []string{"EXCEPTION_CAUSE_NOT_PRESERVED", "RETURN_IN_FINALLY"}},
		{name: "unknown rule", enable: []string{"NOPE"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := rules.Select(rules.All(), tt.enable, tt.disable)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, rules.NewEngine(selected...).Rules())
		})
	}
}

func TestSortFindings(t *testing.T) {
	findings := []rules.Finding{
		{RuleID: "B", Class: "p/B", Method: "a", Descriptor: "()V", Offset: 0},
		{RuleID: "B", Class: "p/A", Method: "b", Descriptor: "()V", Offset: 4},
		{RuleID: "A", Class: "p/A", Method: "b", Descriptor: "()V", Offset: 4},
		{RuleID: "A", Class: "p/A", Method: "b", Descriptor: "()V", Offset: -1},
		{RuleID: "A", Class: "p/A", Method: "b", Descriptor: "()V", Offset: 4},
		{RuleID: "A", Class: "p/A", Method: "a", Descriptor: "(I)V", Offset: 9},
	}
	got := rules.SortFindings(findings)
	want := []rules.Finding{
		{RuleID: "A", Class: "p/A", Method: "a", Descriptor: "(I)V", Offset: 9},
		{RuleID: "A", Class: "p/A", Method: "b", Descriptor: "()V", Offset: -1},
		{RuleID: "A", Class: "p/A", Method: "b", Descriptor: "()V", Offset: 4},
		{RuleID: "B", Class: "p/A", Method: "b", Descriptor: "()V", Offset: 4},
		{RuleID: "B", Class: "p/B", Method: "a", Descriptor: "()V", Offset: 0},
	}
	require.Equal(t, want, got)
}

func TestEngine_Deterministic(t *testing.T) {
	b := classgen.New("p/C", "java/lang/Object")
	add(b, method{
		access: classgen.Static, name: "m", desc: "()I",
		src: `
		Ltry:
			iconst_0
			istore_0
		Lend:
			iconst_1
			ireturn
		Lfinally:
			astore_0
			new java/lang/RuntimeException
			dup
			invokespecial java/lang/RuntimeException.<init>()V
			pop
			iconst_2
			ireturn`,
		handlers: []handler{{start: "Ltry", end: "Lend", handler: "Lfinally"}},
	})
	tc := newContext(t, []*classgen.ClassBuilder{b})

	first, err := rules.NewEngine().Run(context.Background(), tc)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	for range 5 {
		again, err := rules.NewEngine().Run(context.Background(), tc)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestEngine_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rules.NewEngine().Run(ctx, newContext(t, nil))
	require.ErrorIs(t, err, context.Canceled)
}
