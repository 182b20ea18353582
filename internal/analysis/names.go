package analysis

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/classflow/pkg/ir"
)

// NameCache provides efficient caching of source-level names for methods
// and descriptors, shared by every rule that renders a method in a message.
type NameCache struct {
	methodCache *xsync.Map[*ir.Method, string]
	typeCache   *xsync.Map[string, string]
}

func NewNameCache() *NameCache {
	return &NameCache{
		methodCache: xsync.NewMap[*ir.Method, string](),
		typeCache:   xsync.NewMap[string, string](),
	}
}

// ComputeMethodName generates a display name for a method.
// For methods, returns class.name(paramTypes), for example
// "com.example.Foo.bar(int, java.lang.String[])".
// Constructors use the simple class name, as in source.
func (c *NameCache) ComputeMethodName(m *ir.Method) string {
	if m == nil {
		return ""
	}
	name, ok := c.methodCache.Load(m)
	if ok {
		return name
	}
	name = c.computeMethodName(m)
	c.methodCache.Store(m, name)
	return name
}

// ComputeTypeName generates the source form of a field descriptor.
// For class types, returns the dotted name (e.g. "java.lang.String").
// For arrays, appends "[]" per dimension.
// For base types, returns the keyword.
func (c *NameCache) ComputeTypeName(desc string) string {
	if desc == "" {
		return ""
	}
	name, ok := c.typeCache.Load(desc)
	if ok {
		return name
	}
	name = computeTypeName(desc)
	c.typeCache.Store(desc, name)
	return name
}

func (c *NameCache) computeMethodName(m *ir.Method) string {
	class := ClassName(m.Owner)

	// Pre-allocate builder with estimated capacity.
	var builder strings.Builder
	builder.Grow(128) // Pre-allocate for typical method names

	builder.WriteString(class)
	builder.WriteByte('.')
	switch m.Name {
	case "<init>":
		builder.WriteString(simpleName(class))
	case "<clinit>":
		builder.WriteString("<clinit>")
		return builder.String()
	default:
		builder.WriteString(m.Name)
	}

	builder.WriteByte('(')
	for i, p := range splitParams(m.Descriptor) {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(c.ComputeTypeName(p))
	}
	builder.WriteByte(')')
	return builder.String()
}

// ClassName converts an internal class name to its dotted form.
func ClassName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

func simpleName(class string) string {
	if i := strings.LastIndexAny(class, ".$"); i >= 0 {
		return class[i+1:]
	}
	return class
}

var baseTypes = map[byte]string{
	'B': "byte", 'C': "char", 'D': "double", 'F': "float",
	'I': "int", 'J': "long", 'S': "short", 'Z': "boolean", 'V': "void",
}

func computeTypeName(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	elem := desc[dims:]

	// Pre-allocate builder.
	var builder strings.Builder
	builder.Grow(len(desc) + 2*dims)

	switch {
	case len(elem) > 2 && elem[0] == 'L' && elem[len(elem)-1] == ';':
		builder.WriteString(ClassName(elem[1 : len(elem)-1]))
	case len(elem) == 1 && baseTypes[elem[0]] != "":
		builder.WriteString(baseTypes[elem[0]])
	default:
		// Not a descriptor; keep it readable rather than failing.
		return desc
	}
	for range dims {
		builder.WriteString("[]")
	}
	return builder.String()
}

// splitParams returns the parameter descriptors of a method descriptor.
func splitParams(desc string) []string {
	end := strings.IndexByte(desc, ')')
	if len(desc) == 0 || desc[0] != '(' || end < 0 {
		return nil
	}
	var out []string
	for i := 1; i < end; {
		j := i
		for j < end && desc[j] == '[' {
			j++
		}
		if j < end && desc[j] == 'L' {
			k := strings.IndexByte(desc[j:], ';')
			if k < 0 {
				return out
			}
			j += k
		}
		out = append(out, desc[i:j+1])
		i = j + 1
	}
	return out
}
