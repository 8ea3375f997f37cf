// Package apperr defines the error categories shared by the task lifecycle engine.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound reports that the targeted record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports structurally invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrDependencyBlocked reports a completion attempt with incomplete prerequisites.
	ErrDependencyBlocked = errors.New("dependency blocked")
	// ErrDeliveryFailed reports a reminder send that did not succeed.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrStoreUnavailable reports an infrastructure failure of the persistence layer.
	// It never means that a record is missing.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DependencyBlockedError carries the prerequisite ids that prevent completion.
type DependencyBlockedError struct {
	TaskID   string
	Blocking []string
}

func (e *DependencyBlockedError) Error() string {
	return fmt.Sprintf("task %s is blocked by incomplete prerequisites: %s", e.TaskID, strings.Join(e.Blocking, ", "))
}

// Is matches ErrDependencyBlocked.
func (e *DependencyBlockedError) Is(target error) bool {
	return target == ErrDependencyBlocked
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string]string
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Unavailable wraps an infrastructure error as ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Blocking returns the blocking prerequisite ids carried by err, if any.
func Blocking(err error) ([]string, bool) {
	var blocked *DependencyBlockedError
	if errors.As(err, &blocked) {
		return blocked.Blocking, true
	}
	return nil, false
}

// Code returns a stable machine-readable name for the category of err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrDependencyBlocked):
		return "dependency_blocked"
	case errors.Is(err, ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
