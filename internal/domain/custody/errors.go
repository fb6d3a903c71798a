package custody

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	// ErrNotFound indicates a referenced object, path or row is absent.
	ErrNotFound = errors.New("not found")
	// ErrIntegrityMismatch indicates a recomputed hash differs from the recorded one.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrDuplicate indicates a name collision where uniqueness is required.
	ErrDuplicate = errors.New("duplicate")
	// ErrPermissionDenied indicates the caller's role lacks the capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation indicates missing or malformed input, e.g. no active tenant.
	ErrValidation = errors.New("validation failed")
	// ErrAnalyzer indicates the external analyzer failed.
	ErrAnalyzer = errors.New("analyzer failed")
)

// NotFound wraps ErrNotFound with the kind and key of the missing thing.
func NotFound(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotFound)
}

// Invalid wraps ErrValidation with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Denied wraps ErrPermissionDenied with the refused action.
func Denied(action string) error {
	return fmt.Errorf("%s: %w", action, ErrPermissionDenied)
}
