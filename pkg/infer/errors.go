package infer

import (
	"errors"
	"fmt"
)

// Sentinel errors for the unknown-reference and unsupported-type families.
// Callers match them with errors.Is.
var (
	ErrUnknownSchema   = errors.New("infer: unknown schema")
	ErrUnknownType     = errors.New("infer: unknown type")
	ErrUnknownPartial  = errors.New("infer: unknown partial")
	ErrUnknownDataFile = errors.New("infer: unknown data file")
	ErrUnsupportedType = errors.New("infer: unsupported section type")
)

// ConflictError reports a compound property redeclared with an incompatible
// type, or its item type redeclared with a different item type.
type ConflictError struct {
	Name     string
	Existing string
	Declared string
	Items    bool
}

func (e *ConflictError) Error() string {
	if e.Items {
		return fmt.Sprintf("infer: section %q redeclares item type %q as %q", e.Name, e.Existing, e.Declared)
	}
	return fmt.Sprintf("infer: section %q redeclares type %q as %q", e.Name, e.Existing, e.Declared)
}
