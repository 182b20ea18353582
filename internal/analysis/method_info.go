// Package analysis provides method metadata and the report policy for dead
// method detection.
package analysis

import (
	"strings"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

// MethodInfo represents information about a method in the analyzed classes.
type MethodInfo struct {
	// Method is the method this info describes.
	Method *ir.Method

	// Class is the declaring class.
	Class *ir.Class

	// Name is the display name, such as "p.Foo.bar(int, java.lang.String)".
	Name string

	// IsUsed indicates whether this method has been found to be reachable.
	IsUsed bool

	// IsExported indicates whether code outside the package can call this
	// method: public or protected in a public class.
	IsExported bool

	// IsSuppressed indicates whether this method carries
	// @SuppressWarnings("unused") or a suppression for the given rule.
	IsSuppressed bool

	// IsCompilerGenerated indicates a synthetic or bridge method.
	IsCompilerGenerated bool

	// IsLambdaBody indicates a method generated for a lambda expression.
	IsLambdaBody bool

	// HasBody is false for abstract and native methods.
	HasBody bool

	// IsOverride indicates the method may be called through a supertype,
	// including one that is not loaded.
	IsOverride bool
}

// suppressionAnnotations hold string array values naming what to suppress.
var suppressionAnnotations = map[string]bool{
	"Ljava/lang/SuppressWarnings;":                         true,
	"Ledu/umd/cs/findbugs/annotations/SuppressFBWarnings;": true,
	"Ledu/umd/cs/findbugs/annotations/SuppressWarnings;":   true,
}

// NewMethodInfo creates a new MethodInfo for m declared in c. rule is the
// identifier that suppresses the finding besides "unused" and "all".
func NewMethodInfo(c *ir.Class, m *ir.Method, rule string, nameCache *NameCache) *MethodInfo {
	if m == nil {
		return &MethodInfo{Class: c}
	}

	mi := &MethodInfo{
		Method:              m,
		Class:               c,
		Name:                nameCache.ComputeMethodName(m),
		IsUsed:              false, // Always start with false
		IsCompilerGenerated: m.Access&(classfile.AccSynthetic|classfile.AccBridge) != 0,
		IsLambdaBody:        strings.HasPrefix(m.Name, "lambda$"),
		HasBody:             m.HasCode,
	}
	if c != nil {
		public := c.Access&classfile.AccPublic != 0
		mi.IsExported = public && m.Access&(classfile.AccPublic|classfile.AccProtected) != 0
	}
	mi.IsSuppressed = Suppresses(m.Annotations, rule)
	if c != nil && Suppresses(c.Annotations, rule) {
		mi.IsSuppressed = true
	}
	return mi
}

// Suppresses reports whether anns carry a suppression annotation naming
// "unused", "all" or rule.
func Suppresses(anns []classfile.Annotation, rule string) bool {
	for _, a := range anns {
		if !suppressionAnnotations[a.Type] {
			continue
		}
		value, _ := a.Element("value")
		for _, v := range value.Strings() {
			if v == "unused" || v == "all" || (rule != "" && v == rule) {
				return true
			}
		}
	}
	return false
}

// IsSpecial reports whether the method is called by the JVM rather than by
// name: constructors, static initializers and the enum accessors the
// compiler emits.
func (mi *MethodInfo) IsSpecial() bool {
	if mi.Method == nil {
		return false
	}
	switch mi.Method.Name {
	case "<init>", "<clinit>":
		return true
	case "values", "valueOf":
		return mi.Class != nil && mi.Class.Super == "java/lang/Enum"
	}
	return false
}

// ShouldReport determines if this method should be reported as unused.
// Returns true if:
// - Method is unreachable, has a body, AND
// - Method cannot be called from outside the analyzed classes.
func (mi *MethodInfo) ShouldReport() bool {
	if mi.Method == nil || mi.IsUsed {
		return false
	}

	// Don't report suppressed methods.
	if mi.IsSuppressed {
		return false
	}

	// Don't report what the compiler wrote.
	if mi.IsCompilerGenerated || mi.IsLambdaBody {
		return false
	}

	// Abstract and native methods have no code to remove.
	if !mi.HasBody {
		return false
	}

	// Dispatch through a supertype outside the analyzed classes cannot be
	// seen.
	if mi.IsOverride {
		return false
	}

	// Constructors and initializers are often declared only to restrict
	// instantiation.
	if mi.IsSpecial() {
		return false
	}

	// Public API may be called by code that is not on the classpath.
	return !mi.IsExported
}
