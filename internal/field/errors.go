package field

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound indicates the field file does not exist. It wraps fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("field file not found: %w", fs.ErrNotExist)

	// ErrMalformedFieldFile indicates the header or the internalField array could not be parsed.
	ErrMalformedFieldFile = errors.New("malformed field file")

	// ErrSizeMismatch indicates an assignment whose length differs from the mapped array.
	ErrSizeMismatch = errors.New("field size mismatch")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFieldFile, fmt.Sprintf(format, args...))
}
