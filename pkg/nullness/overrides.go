package nullness

import (
	"fmt"

	"github.com/715d/classflow/pkg/hierarchy"
	"github.com/715d/classflow/pkg/ir"
)

// OverrideIssue reports a method whose nullness contract is weaker than a
// method it overrides.
type OverrideIssue struct {
	Method  *ir.Method
	Message string
}

type variance uint8

const (
	covariant variance = iota
	contravariant
	invariant
)

// CheckOverrides compares every method of c with the methods it overrides
// in c's loaded supertypes. Returns may not be more nullable than the
// overridden return, parameters may not be less nullable than the
// overridden parameter, and type arguments must agree exactly.
func CheckOverrides(u *hierarchy.Universe, c *ir.Class) []OverrideIssue {
	var out []OverrideIssue
	for _, m := range c.Methods {
		for _, base := range u.Overridden(m) {
			out = append(out, compareOverride(c, m, base)...)
		}
	}
	return out
}

func compareOverride(c *ir.Class, m, base *ir.Method) []OverrideIssue {
	var out []OverrideIssue
	report := func(format string, args ...any) {
		prefix := fmt.Sprintf("Nullness override: %s.%s%s ", c.Name, m.Name, m.Descriptor)
		out = append(out, OverrideIssue{Method: m, Message: prefix + fmt.Sprintf(format, args...)})
	}
	switch {
	case conflict(base.Return.Top(), m.Return.Top(), covariant):
		report("returns @Nullable but overrides @NonNull")
	case nestedConflict(base.Return, m.Return, covariant):
		report("return type-use is more nullable than the overridden method")
	}
	for i := 0; i < len(m.Params) && i < len(base.Params); i++ {
		switch {
		case conflict(base.Params[i].Top(), m.Params[i].Top(), contravariant):
			report("parameter %d is @NonNull but overrides @Nullable", i)
		case nestedConflict(base.Params[i], m.Params[i], contravariant):
			report("parameter %d type-use is less nullable than the overridden method", i)
		}
	}
	return out
}

func conflict(base, derived ir.Nullness, v variance) bool {
	switch v {
	case covariant:
		return base == ir.NonNull && derived == ir.Nullable
	case contravariant:
		return base == ir.Nullable && derived == ir.NonNull
	}
	return base != ir.Unknown && derived != ir.Unknown && base != derived
}

// nestedConflict compares the positions below the top of two type-uses.
// Array elements keep the variance of the position; type arguments of the
// same class are compared invariantly.
func nestedConflict(base, derived ir.TypeUse, v variance) bool {
	switch {
	case base.Kind != derived.Kind:
		return false
	case base.Kind == ir.KindArray && base.Elem != nil && derived.Elem != nil:
		return typeConflict(*base.Elem, *derived.Elem, v)
	case base.Kind == ir.KindClass:
		if base.Name != derived.Name || len(base.Args) != len(derived.Args) {
			return false
		}
		for i := range base.Args {
			if typeConflict(base.Args[i], derived.Args[i], invariant) {
				return true
			}
		}
		if base.Inner != nil && derived.Inner != nil {
			return nestedConflict(*base.Inner, *derived.Inner, v)
		}
	case base.Kind == ir.KindWildcard && base.Bound != nil && derived.Bound != nil:
		return typeConflict(*base.Bound, *derived.Bound, v)
	}
	return false
}

func typeConflict(base, derived ir.TypeUse, v variance) bool {
	return conflict(base.Nullness, derived.Nullness, v) || nestedConflict(base, derived, v)
}
