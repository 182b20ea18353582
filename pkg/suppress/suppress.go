// Package suppress implements annotation and configuration based
// suppression of findings.
package suppress

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/715d/classflow/pkg/classfile"
	"github.com/715d/classflow/pkg/ir"
)

// Checker decides whether a finding is suppressed.
type Checker struct {
	// declared maps class and member keys to the rules suppressed there.
	declared map[string][]Suppression

	// configured are entries from the configuration file.
	configured []Suppression
}

// Suppression represents a parsed suppression directive.
type Suppression struct {
	// Rule is a rule id, or "" for every rule.
	Rule string
	// Class is a doublestar pattern over dotted class names.
	Class string
	// Method is a method name, or "" for every method.
	Method string
	Reason string
	Type   SuppressionType
}

// SuppressionType represents where a suppression came from.
type SuppressionType int

const (
	// SuppressionAnnotation represents @SuppressWarnings("classflow:RULE")
	// on a class or method.
	SuppressionAnnotation SuppressionType = iota

	// SuppressionConfig represents an entry of the suppress configuration.
	SuppressionConfig
)

// Suppression patterns for annotation values.
var (
	// rulePattern matches "classflow:RULE" with an optional "// reason".
	rulePattern = regexp.MustCompile(`^\s*classflow:([A-Za-z_,\s]+?)(?:\s*//\s*(.+))?\s*$`)

	// genericPattern matches "classflow" alone, suppressing every rule.
	genericPattern = regexp.MustCompile(`^\s*classflow\s*(?://\s*(.+))?$`)
)

// suppressAnnotations are the annotations whose string values are read.
var suppressAnnotations = []string{
	"Ljava/lang/SuppressWarnings;",
	"Ledu/umd/cs/findbugs/annotations/SuppressFBWarnings;",
}

// NewChecker creates a new suppression checker.
func NewChecker() *Checker {
	return &Checker{
		declared: make(map[string][]Suppression),
	}
}

// Load adds configured suppressions. Class patterns are validated.
func (sc *Checker) Load(entries []Suppression) error {
	for i, e := range entries {
		if e.Class == "" {
			e.Class = "**"
		}
		if !doublestar.ValidatePattern(e.Class) {
			return fmt.Errorf("suppress entry %d: invalid class pattern %q", i, e.Class)
		}
		e.Type = SuppressionConfig
		sc.configured = append(sc.configured, e)
	}
	return nil
}

// LoadAnnotations reads suppression annotations from classes and their
// methods.
func (sc *Checker) LoadAnnotations(classes []*ir.Class) {
	for _, c := range classes {
		if s := parseAnnotations(c.Annotations); len(s) > 0 {
			sc.declared[c.Name] = append(sc.declared[c.Name], s...)
		}
		for _, m := range c.Methods {
			if s := parseAnnotations(m.Annotations); len(s) > 0 {
				key := memberKey(c.Name, m.Name, m.Descriptor)
				sc.declared[key] = append(sc.declared[key], s...)
			}
		}
	}
}

func memberKey(class, method, desc string) string {
	return class + "." + method + desc
}

func parseAnnotations(anns []classfile.Annotation) []Suppression {
	var out []Suppression
	for _, a := range anns {
		if !isSuppressAnnotation(a.Type) {
			continue
		}
		value, _ := a.Element("value")
		for _, v := range value.Strings() {
			out = append(out, parseValue(v)...)
		}
	}
	return out
}

func isSuppressAnnotation(desc string) bool {
	for _, s := range suppressAnnotations {
		if s == desc {
			return true
		}
	}
	return false
}

// parseValue parses one annotation string to check if it is a suppression
// directive.
func parseValue(text string) []Suppression {
	if matches := rulePattern.FindStringSubmatch(text); matches != nil {
		reason := strings.TrimSpace(matches[2])
		var out []Suppression
		for rule := range strings.SplitSeq(matches[1], ",") {
			rule = strings.TrimSpace(rule)
			if rule == "" {
				continue
			}
			out = append(out, Suppression{Rule: rule, Reason: reason, Type: SuppressionAnnotation})
		}
		return out
	}

	if matches := genericPattern.FindStringSubmatch(text); matches != nil {
		return []Suppression{{Reason: strings.TrimSpace(matches[1]), Type: SuppressionAnnotation}}
	}

	return nil
}

// IsSuppressed checks if a finding of rule in the given method is
// suppressed. Method annotations apply to the method, class annotations to
// every member, and configured entries to matching class names.
func (sc *Checker) IsSuppressed(rule, class, method, desc string) (bool, string) {
	for _, key := range []string{memberKey(class, method, desc), class} {
		for _, s := range sc.declared[key] {
			if s.Rule == "" || s.Rule == rule {
				return true, reasonOf(s)
			}
		}
	}

	for _, s := range sc.configured {
		if s.Rule != "" && s.Rule != rule {
			continue
		}
		if s.Method != "" && s.Method != method {
			continue
		}
		// Patterns are written with dots; "*" stays inside one package.
		if ok, _ := doublestar.Match(strings.ReplaceAll(s.Class, ".", "/"), class); ok {
			return true, reasonOf(s)
		}
	}
	return false, ""
}

func reasonOf(s Suppression) string {
	if s.Reason == "" {
		return "suppressed"
	}
	return s.Reason
}

// Clear clears all suppressions.
func (sc *Checker) Clear() {
	sc.declared = make(map[string][]Suppression)
	sc.configured = nil
}
