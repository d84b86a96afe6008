package domain

import (
	"errors"
	"fmt"
)

// ErrMissingResource indicates that a record the workflow depends on does not
// exist in the CRM. It signals misconfiguration rather than a transient fault.
var ErrMissingResource = errors.New("required resource missing")

// ErrInvalidDatePattern is returned for date patterns that cannot be rendered.
var ErrInvalidDatePattern = errors.New("invalid date pattern")

// MissingResourceError names the resource that could not be found.
type MissingResourceError struct {
	Kind string
	Key  string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *MissingResourceError) Unwrap() error { return ErrMissingResource }
