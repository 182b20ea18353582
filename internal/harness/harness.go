package harness

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/pkg/classflow"
	"github.com/715d/classflow/pkg/rules"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// Report is the raw result from the analyzer.
	Report *classflow.Report

	// Success indicates if the test passed.
	Success bool

	// Message provides a summary of the result.
	Message string

	// Details provides detailed information about failures.
	Details []string
}

// Run assembles the case's classes, analyzes them with the case's
// configuration and compares the report with the expectations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Classes, "test case has no classes")
	t.Logf("Assembling classes from %q", filepath.Join(h.root, tc.Dir, "case.yaml"))

	entries, lbls, err := Assemble(tc)
	require.NoError(t, err)

	s, err := classflow.NewSession(t.Context(), &classflow.Input{Entries: entries}, classflow.SessionOptions{
		Include: tc.Config.Include,
		Exclude: tc.Config.Exclude,
		Limits:  tc.Config.FlowLimits(),
	})
	require.NoError(t, err)

	a, err := classflow.NewAnalyzer(classflow.AnalyzerOptions{
		Enable:   tc.Config.Rules.Enable,
		Disable:  tc.Config.Rules.Disable,
		Suppress: tc.Config.Suppressions(),
	})
	require.NoError(t, err)

	report, err := a.Analyze(t.Context(), s)
	require.NoError(t, err)

	result := &TestResult{TestCase: tc, Report: report}
	if err := validateExpectedFindings(tc.ExpectedFindings); err != nil {
		result.Message = fmt.Sprintf("Invalid case.yaml: %v", err)
		result.Details = []string{err.Error()}
		return result
	}
	validateResults(result, resolve(tc.ExpectedFindings, lbls), report.Findings)
	validateDiagnostics(result, tc.ExpectedDiagnostics, report.Diagnostics)
	return result
}

// validateExpectedFindings validates that expected findings have required fields
func validateExpectedFindings(expected []ExpectedFinding) error {
	for i, exp := range expected {
		if strings.TrimSpace(exp.Rule) == "" || strings.TrimSpace(exp.Class) == "" {
			return fmt.Errorf("expected finding at index %d needs 'rule' and 'class'", i)
		}
	}
	return nil
}

// resolve turns labels into offsets.
func resolve(expected []ExpectedFinding, lbls labels) []ExpectedFinding {
	out := slices.Clone(expected)
	for i, e := range out {
		if e.Label == "" {
			continue
		}
		if off, ok := lbls[methodKey(e.Class, e.Method, e.Desc)][e.Label]; ok {
			out[i].Offset = off
		} else {
			out[i].Offset = -2
		}
	}
	return out
}

func findingKey(rule, class, method, desc string, offset int) string {
	return fmt.Sprintf("%s %s.%s%s@%d", rule, class, method, desc, offset)
}

// validateResults pairs every expected finding with one actual finding at
// the same location whose message contains the expected text.
func validateResults(result *TestResult, expected []ExpectedFinding, actual []rules.Finding) {
	matched := make([]bool, len(actual))
	var missing []string
	for _, e := range expected {
		key := findingKey(e.Rule, e.Class, e.Method, e.Desc, e.Offset)
		found := false
		for i, a := range actual {
			if matched[i] || findingKey(a.RuleID, a.Class, a.Method, a.Descriptor, a.Offset) != key {
				continue
			}
			if strings.Contains(a.Message, e.Message) {
				matched[i] = true
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fmt.Sprintf("%s (%q)", key, e.Message))
		}
	}

	var unexpected []string
	for i, a := range actual {
		if !matched[i] {
			unexpected = append(unexpected, findingKey(a.RuleID, a.Class, a.Method, a.Descriptor, a.Offset)+": "+a.Message)
		}
	}

	// Sort for consistent output.
	slices.Sort(missing)
	slices.Sort(unexpected)

	var details []string
	for _, m := range missing {
		details = append(details, "Should have been reported: "+m)
	}
	for _, u := range unexpected {
		details = append(details, "Should not have been reported: "+u)
	}

	result.Success = len(details) == 0
	if result.Success {
		result.Message = fmt.Sprintf("All %d expected findings reported", len(expected))
	} else {
		result.Message = fmt.Sprintf("Test failed: %d missing, %d unexpected", len(missing), len(unexpected))
	}
	result.Details = details
}

func validateDiagnostics(result *TestResult, expected []string, actual []classflow.Diagnostic) {
	for _, want := range expected {
		if !slices.ContainsFunc(actual, func(d classflow.Diagnostic) bool {
			return strings.Contains(d.Message, want)
		}) {
			result.Success = false
			result.Details = append(result.Details, fmt.Sprintf("Missing diagnostic containing %q", want))
		}
	}
	if len(expected) == 0 && len(actual) > 0 {
		result.Success = false
		for _, d := range actual {
			result.Details = append(result.Details, fmt.Sprintf("Unexpected diagnostic for %s: %s", d.URI, d.Message))
		}
	}
}
