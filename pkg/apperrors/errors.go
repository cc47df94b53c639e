package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrConfiguration    = errors.New("configuration error")
	ErrPermissionDenied = errors.New("permission denied")
)

// PermissionDeniedError carries a human-readable reason alongside the
// ErrPermissionDenied sentinel. The reason deliberately does not reveal
// whether the requested target exists.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func (e *PermissionDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// PermissionDenied builds a PermissionDeniedError with a formatted reason.
func PermissionDenied(format string, args ...any) error {
	return &PermissionDeniedError{Reason: fmt.Sprintf(format, args...)}
}
