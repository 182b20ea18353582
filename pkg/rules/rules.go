// Package rules implements the detection rules that run over loaded classes
// and the engine that aggregates their findings.
package rules

import (
	"cmp"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
	"github.com/715d/classflow/pkg/nullness"
)

// Context gives rules read-only access to the facts of one analysis run.
type Context interface {
	// Universe returns every loaded class, targets and dependencies.
	Universe() *hierarchy.Universe

	// CallGraph returns the class hierarchy call graph.
	CallGraph() *hierarchy.CallGraph

	// Targets returns the classes under analysis, sorted by name.
	Targets() []*ir.Class

	// IsAnalysisTarget reports whether class is first-party.
	IsAnalysisTarget(class string) bool

	// CFG returns the cached control-flow graph of m.
	CFG(m *ir.Method) (*cfg.Graph, error)

	// Nullness returns the cached nullness fixed point of m.
	Nullness(m *ir.Method) (*nullness.Result, error)

	// Limits returns the budgets for flow analysis.
	Limits() dataflow.Limits
}

// Rule is one independent detection.
type Rule interface {
	ID() string
	Check(rc Context) ([]Finding, error)
}

// Finding is one reported problem. Offset is -1 for findings about a
// declaration rather than an instruction; Line is 0 when unknown.
type Finding struct {
	RuleID     string `json:"rule_id"`
	Class      string `json:"class"`
	Method     string `json:"method"`
	Descriptor string `json:"descriptor"`
	Offset     int    `json:"offset"`
	Message    string `json:"message"`
	Line       int    `json:"line,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s.%s%s@%d: %s", f.RuleID, f.Class, f.Method, f.Descriptor, f.Offset, f.Message)
}

func newFinding(rule string, m *ir.Method, offset int, msg string) Finding {
	f := Finding{
		RuleID:     rule,
		Class:      m.Owner,
		Method:     m.Name,
		Descriptor: m.Descriptor,
		Offset:     offset,
		Message:    msg,
	}
	if offset >= 0 {
		f.Line, _ = m.LineForOffset(offset)
	}
	return f
}

// compare orders findings by class, method, descriptor, offset, rule id and
// message.
func compare(a, b Finding) int {
	return cmp.Or(
		strings.Compare(a.Class, b.Class),
		strings.Compare(a.Method, b.Method),
		strings.Compare(a.Descriptor, b.Descriptor),
		cmp.Compare(a.Offset, b.Offset),
		strings.Compare(a.RuleID, b.RuleID),
		strings.Compare(a.Message, b.Message),
	)
}

// SortFindings sorts findings into report order and drops duplicates.
func SortFindings(findings []Finding) []Finding {
	slices.SortFunc(findings, compare)
	return slices.CompactFunc(findings, func(a, b Finding) bool {
		return compare(a, b) == 0
	})
}

// All returns every rule in id order.
func All() []Rule {
	return []Rule{
		&deadCode{},
		&causeNotPreserved{},
		&nullnessRule{},
		&returnInFinally{},
	}
}

// Select returns the rules of all whose id is in enable, or every rule when
// enable is empty, minus those in disable. Unknown ids are an error.
func Select(all []Rule, enable, disable []string) ([]Rule, error) {
	known := make(map[string]bool, len(all))
	for _, r := range all {
		known[r.ID()] = true
	}
	for _, id := range slices.Concat(enable, disable) {
		if !known[id] {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
	}
	var out []Rule
	for _, r := range all {
		if len(enable) > 0 && !slices.Contains(enable, r.ID()) {
			continue
		}
		if slices.Contains(disable, r.ID()) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// forEachMethod calls fn for every method with code in the target classes,
// spreading classes over the available CPUs, and concatenates the findings
// in class order.
func forEachMethod(rc Context, fn func(c *ir.Class, m *ir.Method) []Finding) []Finding {
	classes := rc.Targets()
	results := make([][]Finding, len(classes))

	var g errgroup.Group
	g.SetLimit(goruntime.NumCPU())
	for idx, c := range classes {
		g.Go(func() error {
			for _, m := range c.Methods {
				if !m.HasCode {
					continue
				}
				results[idx] = append(results[idx], fn(c, m)...)
			}
			return nil
		})
	}
	g.Wait()
	return slices.Concat(results...)
}

// graphOf returns the CFG of m, logging and returning nil when it cannot be
// built. The session records the failure as a diagnostic.
func graphOf(rc Context, rule string, m *ir.Method) *cfg.Graph {
	g, err := rc.CFG(m)
	if err != nil {
		slog.Debug("skipping method without a graph", "rule", rule, "method", m.String(), "error", err)
		return nil
	}
	return g
}
