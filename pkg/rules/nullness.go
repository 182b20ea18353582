package rules

import (
	"log/slog"
	"slices"

	"github.com/715d/classflow/pkg/ir"
	"github.com/715d/classflow/pkg/nullness"
)

// NullnessID reports nullness contract violations.
const NullnessID = "NULLNESS"

type nullnessRule struct{}

func (*nullnessRule) ID() string { return NullnessID }

// Check reports flow issues of every method with code and override
// conflicts of every target class.
func (*nullnessRule) Check(rc Context) ([]Finding, error) {
	var out []Finding
	for _, c := range rc.Targets() {
		for _, issue := range nullness.CheckOverrides(rc.Universe(), c) {
			out = append(out, newFinding(NullnessID, issue.Method, -1, issue.Message))
		}
	}
	flow := forEachMethod(rc, func(_ *ir.Class, m *ir.Method) []Finding {
		r, err := rc.Nullness(m)
		if err != nil {
			slog.Debug("nullness unavailable", "method", m.String(), "error", err)
			return nil
		}
		var found []Finding
		for _, issue := range r.Issues {
			found = append(found, newFinding(NullnessID, m, issue.Offset, issue.Message))
		}
		return found
	})
	return slices.Concat(out, flow), nil
}
