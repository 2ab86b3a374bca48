package models

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError indicates that a referenced trip, day or destination does
// not exist at all.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFound builds a NotFoundError for the given resource kind and id.
func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ForbiddenError indicates that a referenced entity exists but is not owned
// by the caller, or that a cross-trip operation was attempted. It is kept
// distinct from NotFoundError: the two map to different HTTP statuses and
// must never be collapsed into each other.
type ForbiddenError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("access to %s %q denied: %s", e.Resource, e.ID, e.Reason)
	}
	return fmt.Sprintf("access to %s %q denied", e.Resource, e.ID)
}

// NewForbidden builds a ForbiddenError with an optional reason.
func NewForbidden(resource, id, reason string) error {
	return &ForbiddenError{Resource: resource, ID: id, Reason: reason}
}

// FieldViolation is a single structural or semantic constraint failure,
// addressed by the path of the offending field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every violated constraint of a payload. A payload
// is either fully valid or rejected with the complete violation list; there
// is no partial acceptance.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var fb *ForbiddenError
	return errors.As(err, &fb)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
