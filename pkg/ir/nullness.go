package ir

// Nullness is the three-valued nullness lattice. NonNull and Nullable are
// incomparable and both sit below Unknown. The zero value is Unknown so an
// unset position is never mistaken for NonNull.
type Nullness uint8

// Nullness values.
const (
	Unknown Nullness = iota
	NonNull
	Nullable
)

func (n Nullness) String() string {
	switch n {
	case NonNull:
		return "NonNull"
	case Nullable:
		return "Nullable"
	}
	return "Unknown"
}

// Join returns the least upper bound of a and b.
func Join(a, b Nullness) Nullness {
	if a == b {
		return a
	}
	return Unknown
}

// Leq reports whether a is below or equal to b in the lattice.
func Leq(a, b Nullness) bool {
	return a == b || b == Unknown
}
