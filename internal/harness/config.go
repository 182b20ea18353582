// Package harness provides test harness infrastructure for validating the
// analyzer against class fixtures described in yaml.
package harness

import (
	"fmt"
	"strings"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/classflow"
)

// TestCase represents a single test scenario read from case.yaml.
type TestCase struct {
	// Dir is the directory containing the case, relative to the testdata
	// root.
	Dir string `yaml:"-"`

	Description string `yaml:"description"`

	// Config is applied as if read from a configuration file.
	Config classflow.Config `yaml:"config"`

	Classes []ClassSpec `yaml:"classes"`

	// ExpectedFindings lists every finding the analyzer must report, and
	// nothing else.
	ExpectedFindings []ExpectedFinding `yaml:"expected_findings"`

	// ExpectedDiagnostics are substrings of diagnostic messages.
	ExpectedDiagnostics []string `yaml:"expected_diagnostics"`
}

// ClassSpec describes a class to assemble.
type ClassSpec struct {
	Name        string   `yaml:"name"`
	Super       string   `yaml:"super"`
	Access      []string `yaml:"access"`
	Interfaces  []string `yaml:"interfaces"`
	Signature   string   `yaml:"signature"`
	Annotations []string `yaml:"annotations"`

	// Dependency classes are loaded but not analyzed.
	Dependency bool `yaml:"dependency"`

	// Raw replaces the class bytes, for malformed input.
	Raw string `yaml:"raw"`

	Fields  []FieldSpec  `yaml:"fields"`
	Methods []MethodSpec `yaml:"methods"`
}

// FieldSpec describes a field.
type FieldSpec struct {
	Name            string               `yaml:"name"`
	Desc            string               `yaml:"desc"`
	Access          []string             `yaml:"access"`
	Signature       string               `yaml:"signature"`
	Annotations     []string             `yaml:"annotations"`
	TypeAnnotations []TypeAnnotationSpec `yaml:"type_annotations"`
}

// MethodSpec describes a method. Code is assembler source; methods without
// code are abstract or native.
type MethodSpec struct {
	Name            string               `yaml:"name"`
	Desc            string               `yaml:"desc"`
	Access          []string             `yaml:"access"`
	Signature       string               `yaml:"signature"`
	Annotations     []string             `yaml:"annotations"`
	TypeAnnotations []TypeAnnotationSpec `yaml:"type_annotations"`
	MaxStack        int                  `yaml:"max_stack"`
	MaxLocals       int                  `yaml:"max_locals"`
	Handlers        []HandlerSpec        `yaml:"handlers"`
	Lines           map[string]int       `yaml:"lines"`
	Code            string               `yaml:"code"`
}

// HandlerSpec is an exception table row over labels. An empty Catch is a
// finally handler.
type HandlerSpec struct {
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Handler string `yaml:"handler"`
	Catch   string `yaml:"catch"`
}

// TypeAnnotationSpec is a type annotation with a named target.
type TypeAnnotationSpec struct {
	Target string `yaml:"target"`
	Index  int    `yaml:"index"`
	Bound  int    `yaml:"bound"`
	Path   string `yaml:"path"`
	Type   string `yaml:"type"`
}

// ExpectedFinding represents a finding the analyzer must report. Label
// names the instruction in the method's code; without one the offset is
// compared.
type ExpectedFinding struct {
	Rule   string `yaml:"rule"`
	Class  string `yaml:"class"`
	Method string `yaml:"method"`
	Desc   string `yaml:"desc"`
	Label  string `yaml:"label"`
	Offset int    `yaml:"offset"`

	// Message is matched as a substring.
	Message string `yaml:"message"`
}

var accessFlags = map[string]uint16{
	"public":    classgen.Public,
	"private":   classgen.Private,
	"protected": classgen.Protected,
	"static":    classgen.Static,
	"final":     classgen.Final,
	"super":     classgen.Super,
	"bridge":    classgen.Bridge,
	"interface": classgen.Interface,
	"abstract":  classgen.Abstract,
	"synthetic": classgen.Synthetic,
}

var typeTargets = map[string]uint8{
	"class_type_parameter_bound": classgen.TargetClassTypeParameterBound,
	"supertype":                  classgen.TargetSupertype,
	"field":                      classgen.TargetField,
	"return":                     classgen.TargetReturn,
	"parameter":                  classgen.TargetParameter,
}

// annotationAliases lets cases write short names for common annotations.
var annotationAliases = map[string]string{
	"Nullable":     classgen.Nullable,
	"NonNull":      classgen.NonNull,
	"NullMarked":   classgen.NullMarked,
	"NullUnmarked": "Lorg/jspecify/annotations/NullUnmarked;",
}

func access(names []string) (uint16, error) {
	var flags uint16
	for _, n := range names {
		f, ok := accessFlags[strings.ToLower(n)]
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", n)
		}
		flags |= f
	}
	return flags, nil
}

func annotation(name string) string {
	if desc, ok := annotationAliases[name]; ok {
		return desc
	}
	return name
}

func annotations(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = annotation(n)
	}
	return out
}

func typeAnnotations(specs []TypeAnnotationSpec) ([]classgen.TypeAnnotation, error) {
	out := make([]classgen.TypeAnnotation, 0, len(specs))
	for _, s := range specs {
		target, ok := typeTargets[s.Target]
		if !ok {
			return nil, fmt.Errorf("unknown type annotation target %q", s.Target)
		}
		out = append(out, classgen.TypeAnnotation{
			Target: target,
			Index:  s.Index,
			Bound:  s.Bound,
			Path:   s.Path,
			Type:   annotation(s.Type),
		})
	}
	return out, nil
}
