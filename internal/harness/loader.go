package harness

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/classflow/internal/classgen"
	"github.com/715d/classflow/pkg/classflow"
)

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()
	yamlPath := filepath.Join(dir, "case.yaml")

	tc := &TestCase{}
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	err = yaml.Unmarshal(data, tc)
	require.NoError(t, err)
	require.NoError(t, tc.Config.Validate(), "invalid config in %s", yamlPath)

	// Use relative path from testdata root if provided.
	if root != "" {
		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			tc.Dir = filepath.Base(dir)
		} else {
			tc.Dir = relPath
		}
		return tc
	}

	tc.Dir = filepath.Base(dir)
	return tc
}

// labels maps "class.method desc" to the labels of the method's code.
type labels map[string]map[string]int

func methodKey(class, method, desc string) string {
	return class + "." + method + desc
}

// Assemble builds the class bytes of every class in tc.
func Assemble(tc *TestCase) ([]classflow.Entry, labels, error) {
	entries := make([]classflow.Entry, 0, len(tc.Classes))
	all := make(labels)
	for _, cs := range tc.Classes {
		uri := "case:" + tc.Dir + "/" + cs.Name + ".class"
		if cs.Raw != "" {
			entries = append(entries, classflow.Entry{URI: uri, Data: []byte(cs.Raw), Target: !cs.Dependency})
			continue
		}
		data, err := assembleClass(cs, all)
		if err != nil {
			return nil, nil, fmt.Errorf("class %s: %w", cs.Name, err)
		}
		entries = append(entries, classflow.Entry{URI: uri, Data: data, Target: !cs.Dependency})
	}
	return entries, all, nil
}

func assembleClass(cs ClassSpec, all labels) ([]byte, error) {
	super := cs.Super
	if super == "" && cs.Name != "java/lang/Object" {
		super = "java/lang/Object"
	}
	b := classgen.New(cs.Name, super)
	if len(cs.Access) > 0 {
		flags, err := access(cs.Access)
		if err != nil {
			return nil, err
		}
		b.Access(flags)
	}
	b.Implements(cs.Interfaces...)
	if cs.Signature != "" {
		b.Signature(cs.Signature)
	}
	for _, a := range annotations(cs.Annotations) {
		b.Annotate(a)
	}

	for _, fs := range cs.Fields {
		flags, err := access(fs.Access)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		tas, err := typeAnnotations(fs.TypeAnnotations)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fs.Name, err)
		}
		b.AddField(classgen.Field{
			Access:          flags,
			Name:            fs.Name,
			Descriptor:      fs.Desc,
			Signature:       fs.Signature,
			Annotations:     annotations(fs.Annotations),
			TypeAnnotations: tas,
		})
	}

	for _, ms := range cs.Methods {
		m, lbls, err := assembleMethod(b, ms)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", ms.Name, ms.Desc, err)
		}
		b.AddMethod(m)
		all[methodKey(cs.Name, ms.Name, ms.Desc)] = lbls
	}
	return b.Bytes(), nil
}

func assembleMethod(b *classgen.ClassBuilder, ms MethodSpec) (classgen.Method, map[string]int, error) {
	flags, err := access(ms.Access)
	if err != nil {
		return classgen.Method{}, nil, err
	}
	tas, err := typeAnnotations(ms.TypeAnnotations)
	if err != nil {
		return classgen.Method{}, nil, err
	}
	m := classgen.Method{
		Access:          flags,
		Name:            ms.Name,
		Descriptor:      ms.Desc,
		Signature:       ms.Signature,
		Annotations:     annotations(ms.Annotations),
		TypeAnnotations: tas,
	}
	if ms.Code == "" {
		return m, nil, nil
	}

	bytecode, lbls, err := classgen.Assemble(b, ms.Code)
	if err != nil {
		return classgen.Method{}, nil, err
	}
	code := &classgen.Code{
		MaxStack:  cmp.Or(ms.MaxStack, 8),
		MaxLocals: cmp.Or(ms.MaxLocals, 8),
		Bytecode:  bytecode,
	}
	at := func(label string) (int, error) {
		off, ok := lbls[label]
		if !ok {
			return 0, fmt.Errorf("undefined label %q", label)
		}
		return off, nil
	}
	for _, h := range ms.Handlers {
		var row classgen.Handler
		if row.Start, err = at(h.Start); err != nil {
			return classgen.Method{}, nil, err
		}
		if row.End, err = at(h.End); err != nil {
			return classgen.Method{}, nil, err
		}
		if row.Handler, err = at(h.Handler); err != nil {
			return classgen.Method{}, nil, err
		}
		row.CatchType = h.Catch
		code.Handlers = append(code.Handlers, row)
	}
	for label, line := range ms.Lines {
		pc, err := at(label)
		if err != nil {
			return classgen.Method{}, nil, err
		}
		code.Lines = append(code.Lines, classgen.Line{PC: pc, Line: line})
	}
	slices.SortFunc(code.Lines, func(a, b classgen.Line) int { return a.PC - b.PC })
	m.Code = code
	return m, lbls, nil
}
