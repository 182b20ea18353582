package ir

import "github.com/715d/classflow/pkg/classfile"

// JSpecify scope annotations.
const (
	NullMarkedAnnotation   = "Lorg/jspecify/annotations/NullMarked;"
	NullUnmarkedAnnotation = "Lorg/jspecify/annotations/NullUnmarked;"
)

var nullableAnnotations = map[string]bool{
	"Lorg/jspecify/annotations/Nullable;":                   true,
	"Ljavax/annotation/Nullable;":                           true,
	"Ljavax/annotation/CheckForNull;":                       true,
	"Lorg/jetbrains/annotations/Nullable;":                  true,
	"Landroidx/annotation/Nullable;":                        true,
	"Landroid/support/annotation/Nullable;":                 true,
	"Lorg/checkerframework/checker/nullness/qual/Nullable;": true,
	"Ledu/umd/cs/findbugs/annotations/Nullable;":            true,
	"Ledu/umd/cs/findbugs/annotations/CheckForNull;":        true,
}

var nonNullAnnotations = map[string]bool{
	"Lorg/jspecify/annotations/NonNull;":                   true,
	"Ljavax/annotation/Nonnull;":                           true,
	"Lorg/jetbrains/annotations/NotNull;":                  true,
	"Landroidx/annotation/NonNull;":                        true,
	"Landroid/support/annotation/NonNull;":                 true,
	"Lorg/checkerframework/checker/nullness/qual/NonNull;": true,
	"Ledu/umd/cs/findbugs/annotations/NonNull;":            true,
	"Llombok/NonNull;":                                     true,
}

// AnnotationNullness maps an annotation descriptor to the nullness it
// declares, Unknown for anything else.
func AnnotationNullness(desc string) Nullness {
	switch {
	case nullableAnnotations[desc]:
		return Nullable
	case nonNullAnnotations[desc]:
		return NonNull
	}
	return Unknown
}

// DeclaredNullness returns the nullness named by a list of declaration
// annotations. Nullable wins when both kinds are present.
func DeclaredNullness(anns []classfile.Annotation) Nullness {
	out := Unknown
	for _, a := range anns {
		switch AnnotationNullness(a.Type) {
		case Nullable:
			return Nullable
		case NonNull:
			out = NonNull
		}
	}
	return out
}

// HasAnnotation reports whether anns contains the descriptor.
func HasAnnotation(anns []classfile.Annotation, desc string) bool {
	for _, a := range anns {
		if a.Type == desc {
			return true
		}
	}
	return false
}

// resolvePath follows a type_path from t. It returns nil when a step does
// not match the shape of the tree.
func resolvePath(t *TypeUse, path []classfile.TypePathEntry) *TypeUse {
	for _, step := range path {
		if t == nil {
			return nil
		}
		switch step.Kind {
		case classfile.PathArray:
			if t.Kind != KindArray {
				return nil
			}
			t = t.Elem
		case classfile.PathNested:
			if t.Kind != KindClass {
				return nil
			}
			t = t.Inner
		case classfile.PathWildcard:
			if t.Kind != KindWildcard {
				return nil
			}
			t = t.Bound
		case classfile.PathTypeArgument:
			if t.Kind != KindClass || int(step.Index) >= len(t.Args) {
				return nil
			}
			t = &t.Args[step.Index]
		default:
			return nil
		}
	}
	return t
}

// annotate applies a type-use annotation. Paths that do not resolve leave
// the tree untouched so the position stays Unknown.
func annotate(t *TypeUse, ta classfile.TypeAnnotation) bool {
	n := AnnotationNullness(ta.Annotation.Type)
	if n == Unknown || t == nil {
		return false
	}
	target := resolvePath(t, ta.Path)
	if target == nil || !target.IsReference() {
		return false
	}
	target.Nullness = n
	return true
}

// applyDeclared sets top-level nullness from declaration annotations when no
// type-use annotation did.
func applyDeclared(t *TypeUse, anns []classfile.Annotation) {
	if !t.IsReference() || t.Top() != Unknown {
		return
	}
	t.Nullness = DeclaredNullness(anns)
}

// applyNullMarked makes every unannotated class and array position NonNull.
// Type variable uses and wildcards keep Unknown.
func applyNullMarked(t *TypeUse) {
	t.Walk(func(p *TypeUse) {
		if p.Nullness == Unknown && (p.Kind == KindClass || p.Kind == KindArray) {
			p.Nullness = NonNull
		}
	})
}

func applyNullMarkedParams(params []TypeParam) {
	for i := range params {
		if params[i].ClassBound != nil {
			applyNullMarked(params[i].ClassBound)
		}
		for j := range params[i].InterfaceBounds {
			applyNullMarked(&params[i].InterfaceBounds[j])
		}
	}
}
