package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated = NewAuthError("user not authenticated")
	ErrForbidden       = &ForbiddenError{Message: "permission denied"}
)

// AuthError is returned when a request carries no valid session.
type AuthError struct {
	Message string
}

func NewAuthError(msg string) *AuthError {
	return &AuthError{Message: msg}
}

func (err AuthError) Error() string { return err.Message }

// ForbiddenError is returned when the caller's role lacks a capability.
type ForbiddenError struct {
	Message string
}

func NewForbiddenError(msg string) *ForbiddenError {
	return &ForbiddenError{Message: msg}
}

func (err ForbiddenError) Error() string { return err.Message }

// NotFoundError is returned when a resource does not exist or lies outside the caller's scope.
type NotFoundError struct {
	Resource string
	IDs      []string
}

func NewNotFoundError(resource string, ids ...string) *NotFoundError {
	return &NotFoundError{Resource: resource, IDs: ids}
}

func (err NotFoundError) Error() string {
	if len(err.IDs) > 0 {
		return fmt.Sprintf("%s not found: %s", err.Resource, strings.Join(err.IDs, ", "))
	}
	return err.Resource + " not found"
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	if err == nil && len(flds) > 0 {
		err = errors.New(flds[0].Error)
	}
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// Reason is the machine-readable cause of a domain invariant violation.
type Reason string

const (
	ReasonCapacityExceeded  Reason = "capacity_exceeded"
	ReasonAlreadyEnrolled   Reason = "already_enrolled"
	ReasonNothingToUnenroll Reason = "nothing_to_unenroll"
	ReasonDuplicateAction   Reason = "duplicate_action"
	ReasonInvalidTransition Reason = "invalid_transition"
)

// InvariantError reports a violated domain invariant.
type InvariantError struct {
	Reason  Reason
	Message string
	Details map[string]interface{}
}

func NewInvariantError(reason Reason, msg string, details map[string]interface{}) *InvariantError {
	return &InvariantError{Reason: reason, Message: msg, Details: details}
}

func (err InvariantError) Error() string { return err.Message }

// HasReason reports whether err is an InvariantError with the given reason.
func HasReason(err error, reason Reason) bool {
	ierr, ok := errors.Cause(err).(*InvariantError)
	return ok && ierr.Reason == reason
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
