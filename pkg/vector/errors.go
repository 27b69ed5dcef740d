package vector

import (
	"errors"
	"io/fs"

	"pintfoam/internal/field"
)

// Sentinel errors. NotFound and AlreadyExists alias the io/fs sentinels that
// every lower layer wraps, so errors.Is works regardless of which layer failed.
var (
	ErrNotFound           = fs.ErrNotExist
	ErrAlreadyExists      = fs.ErrExist
	ErrMalformedFieldFile = field.ErrMalformedFieldFile
	ErrSizeMismatch       = field.ErrSizeMismatch

	// ErrFieldMismatch indicates operands with different field sets or field sizes.
	ErrFieldMismatch = errors.New("vector: field mismatch")
	// ErrUnknownField indicates a field name not declared on the base case.
	ErrUnknownField = errors.New("vector: unknown field")
	// ErrInvalidName indicates a case name that is not a single path element.
	ErrInvalidName = errors.New("vector: invalid case name")
)
