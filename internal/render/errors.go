package render

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against the typed render errors.
var (
	ErrInvalidRequest = errors.New("invalid render request")
	ErrFontResolution = errors.New("font resolution failed")

	// ErrFontNotFound is returned by a Source that does not provide the family.
	ErrFontNotFound = errors.New("font not found")
)

// InvalidRequestError reports a request the caller must fix before retrying.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid render request: %s %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidRequest.
func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// FontResolutionError reports a font family that could not be loaded from any source.
type FontResolutionError struct {
	Family string
	Err    error
}

func (e *FontResolutionError) Error() string {
	return fmt.Sprintf("resolve font %q: %v", e.Family, e.Err)
}

// Unwrap returns the underlying lookup or parse error.
func (e *FontResolutionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrFontResolution.
func (e *FontResolutionError) Is(target error) bool { return target == ErrFontResolution }

func invalid(field, format string, args ...any) error {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
