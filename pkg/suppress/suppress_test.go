package suppress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

func TestSuppressionChecker_NewChecker(t *testing.T) {
	checker := NewChecker()

	require.NotNil(t, checker, "NewChecker returned nil")
	require.NotNil(t, checker.declared, "Expected declared map to be initialized")
}

func TestSuppressionChecker_ParseValue(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		expectedRules  []string
		expectedReason string
		expectParsed   bool
	}{
		{
			name:          "single rule",
			value:         "classflow:NULLNESS",
			expectedRules: []string{"NULLNESS"},
			expectParsed:  true,
		},
		{
			name:           "single rule with reason",
			value:          "classflow:DEAD_CODE // called reflectively",
			expectedRules:  []string{"DEAD_CODE"},
			expectedReason: "called reflectively",
			expectParsed:   true,
		},
		{
			name:          "multiple rules",
			value:         "classflow:NULLNESS, RETURN_IN_FINALLY",
			expectedRules: []string{"NULLNESS", "RETURN_IN_FINALLY"},
			expectParsed:  true,
		},
		{
			name:          "every rule",
			value:         "classflow",
			expectedRules: []string{""},
			expectParsed:  true,
		},
		{
			name:           "every rule with reason",
			value:          "classflow // generated code",
			expectedRules:  []string{""},
			expectedReason: "generated code",
			expectParsed:   true,
		},
		{
			name:  "javac warning name",
			value: "unchecked",
		},
		{
			name:  "other tool",
			value: "PMD.UnusedPrivateMethod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suppressions := parseValue(tt.value)

			if !tt.expectParsed {
				require.Empty(t, suppressions, "Expected no suppression, got %v", suppressions)
				return
			}
			var rules []string
			for _, s := range suppressions {
				require.Equal(t, SuppressionAnnotation, s.Type)
				require.Equal(t, tt.expectedReason, s.Reason)
				rules = append(rules, s.Rule)
			}
			require.Equal(t, tt.expectedRules, rules)
		})
	}
}

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

// TestSuppressionChecker_IsSuppressed tests suppression checking with reasons.
func TestSuppressionChecker_IsSuppressed(t *testing.T) {
	classes := []*ir.Class{
		{
			Name: "p/Legacy",
			Annotations: []classfile.Annotation{
				suppressWarnings("classflow:NULLNESS // migrated later"),
			},
			Methods: []*ir.Method{{Owner: "p/Legacy", Name: "run", Descriptor: "()V"}},
		},
		{
			Name: "p/Service",
			Methods: []*ir.Method{
				{
					Owner: "p/Service", Name: "load", Descriptor: "()V",
					Annotations: []classfile.Annotation{suppressWarnings("unchecked", "classflow")},
				},
				{Owner: "p/Service", Name: "save", Descriptor: "()V"},
			},
		},
	}

	checker := NewChecker()
	checker.LoadAnnotations(classes)
	require.NoError(t, checker.Load([]Suppression{
		{Rule: "DEAD_CODE", Class: "p.gen.**", Reason: "generated"},
		{Rule: "RETURN_IN_FINALLY", Class: "p.Service", Method: "save"},
	}))

	tests := []struct {
		name             string
		rule             string
		class            string
		method           string
		expectSuppressed bool
		expectReason     string
	}{
		{"class annotation", "NULLNESS", "p/Legacy", "run", true, "migrated later"},
		{"class annotation other rule", "DEAD_CODE", "p/Legacy", "run", false, ""},
		{"method annotation for every rule", "DEAD_CODE", "p/Service", "load", true, "suppressed"},
		{"sibling method", "DEAD_CODE", "p/Service", "save", false, ""},
		{"configured method", "RETURN_IN_FINALLY", "p/Service", "save", true, "suppressed"},
		{"configured pattern", "DEAD_CODE", "p/gen/deep/Parser", "parse", true, "generated"},
		{"configured pattern other rule", "NULLNESS", "p/gen/Parser", "parse", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suppressed, reason := checker.IsSuppressed(tt.rule, tt.class, tt.method, "()V")
			require.Equal(t, tt.expectSuppressed, suppressed)
			require.Equal(t, tt.expectReason, reason)
		})
	}
}

// TestSuppressionChecker_Clear tests clearing suppressions.
func TestSuppressionChecker_Clear(t *testing.T) {
	checker := NewChecker()
	require.NoError(t, checker.Load([]Suppression{{Rule: "NULLNESS"}}))

	suppressed, _ := checker.IsSuppressed("NULLNESS", "p/A", "m", "()V")
	require.True(t, suppressed, "Expected an empty class pattern to match every class")

	checker.Clear()

	suppressed, _ = checker.IsSuppressed("NULLNESS", "p/A", "m", "()V")
	require.False(t, suppressed, "Expected suppressions to be cleared")
}

// TestSuppressionChecker_EdgeCases tests edge cases and error conditions.
func TestSuppressionChecker_EdgeCases(t *testing.T) {
	checker := NewChecker()

	err := checker.Load([]Suppression{{Class: "p.[Broken"}})
	require.Error(t, err, "Expected error with an invalid pattern")

	// "*" does not cross packages.
	require.NoError(t, checker.Load([]Suppression{{Class: "p.*"}}))
	suppressed, _ := checker.IsSuppressed("NULLNESS", "p/A", "m", "()V")
	require.True(t, suppressed)
	suppressed, _ = checker.IsSuppressed("NULLNESS", "p/q/A", "m", "()V")
	require.False(t, suppressed)

	// Checking with nothing loaded.
	suppressed, reason := NewChecker().IsSuppressed("NULLNESS", "p/A", "m", "()V")
	require.False(t, suppressed)
	require.Empty(t, reason)
}
