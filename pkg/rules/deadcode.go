package rules

import (
	"github.com/715d/classflow/internal/analysis"
	"github.com/715d/classflow/internal/rta"
	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
)

// DeadCodeID reports methods no entry point reaches.
const DeadCodeID = "DEAD_CODE"

// objectMethods are the overridable methods of java/lang/Object, which is
// usually not loaded.
var objectMethods = map[string]string{
	"toString": "()Ljava/lang/String;",
	"equals":   "(Ljava/lang/Object;)Z",
	"hashCode": "()I",
	"clone":    "()Ljava/lang/Object;",
	"finalize": "()V",
}

type deadCode struct{}

func (*deadCode) ID() string { return DeadCodeID }

// Check runs RTA from the entry points of every loaded class and reports
// the target methods it never reaches.
func (*deadCode) Check(rc Context) ([]Finding, error) {
	u := rc.Universe()
	result := rta.Analyze(u, rta.Roots(u.Classes()))
	names := analysis.NewNameCache()

	var out []Finding
	for _, c := range rc.Targets() {
		_, missing := u.Supertypes(c.Name)
		for _, m := range c.Methods {
			info := analysis.NewMethodInfo(c, m, DeadCodeID, names)
			info.IsUsed = result != nil && result.IsReachable(m)
			info.IsOverride = isOverride(u, m, len(missing) > 0)
			if info.ShouldReport() {
				out = append(out, newFinding(DeadCodeID, m, 0, "Unreachable method: "+info.Name))
			}
		}
	}
	return out, nil
}

// isOverride reports whether m may be selected by a call through a
// supertype. Any instance method may override into an unloaded supertype.
func isOverride(u *hierarchy.Universe, m *ir.Method, unloaded bool) bool {
	if m.IsStatic() || m.IsConstructor() || m.Is(classfile.AccPrivate) {
		return false
	}
	if unloaded {
		return true
	}
	if desc, ok := objectMethods[m.Name]; ok && desc == m.Descriptor {
		return true
	}
	return len(u.Overridden(m)) > 0
}
