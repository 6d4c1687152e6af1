package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError pins a validation failure to a field path such as "roles.ann@example.com"
// or "raidItems.2.type".
type FieldError struct {
	Path   string `json:"field"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	if f.Path == "" {
		return f.Reason
	}
	return f.Path + ": " + f.Reason
}

// ValidationError reports malformed input. It is always recoverable by supplying
// corrected data.
type ValidationError struct {
	Entity   string
	Problems []FieldError
}

// NewValidationError builds a ValidationError with a single problem.
func NewValidationError(entity, path, reason string) *ValidationError {
	return &ValidationError{Entity: entity, Problems: []FieldError{{Path: path, Reason: reason}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.String())
	}
	prefix := "validation failed"
	if e.Entity != "" {
		prefix = e.Entity + " validation failed"
	}
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

// HasField reports whether any problem refers to path or a child of it.
func (e *ValidationError) HasField(path string) bool {
	for _, p := range e.Problems {
		if p.Path == path || strings.HasPrefix(p.Path, path+".") {
			return true
		}
	}
	return false
}

// NotFoundError is returned when an operation requires an entity that is absent.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PermissionError is returned when a caller fails an authorization check.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason == "" {
		return "permission denied"
	}
	return "permission denied: " + e.Reason
}

// ErrNoID is returned by Path when a record has not been persisted yet.
var ErrNoID = errors.New("record has no id")

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsPermission reports whether err wraps a *PermissionError.
func IsPermission(err error) bool {
	var p *PermissionError
	return errors.As(err, &p)
}
