package classfile

import "fmt"

// MalformedClassError reports class bytes that cannot be decoded.
// Offset is the byte position in the class file where decoding stopped.
type MalformedClassError struct {
	Reason string
	Offset int
}

func (e *MalformedClassError) Error() string {
	return fmt.Sprintf("malformed class file at byte %d: %s", e.Offset, e.Reason)
}
