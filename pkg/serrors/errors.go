package serrors

import (
	"errors"
	"fmt"
	"net/http"
)

// BaseError is the root of the service error taxonomy. Every error the
// services return to the presentation layer embeds it, so controllers can
// map any domain failure to a status code without type-switching on
// module-specific errors.
type BaseError struct {
	Code      string
	Message   string
	LocaleKey string
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{Code: code, Message: message, LocaleKey: localeKey}
}

func (e *BaseError) Error() string {
	return e.Message
}

// NotFoundError reports an absent entity (content item or proposal).
type NotFoundError struct {
	*BaseError
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: NewError("NOT_FOUND", fmt.Sprintf("%s %s not found", entity, id), "Errors.NotFound"),
		Entity:    entity,
		ID:        id,
	}
}

// InvalidTransitionError reports a state-machine precondition violation.
// It names both the state the record is in and the state the caller tried
// to move it to; callers must never get a silent no-op instead.
type InvalidTransitionError struct {
	*BaseError
	Current   string
	Attempted string
}

func NewInvalidTransitionError(current, attempted string) *InvalidTransitionError {
	return &InvalidTransitionError{
		BaseError: NewError(
			"INVALID_TRANSITION",
			fmt.Sprintf("cannot transition from %s to %s", current, attempted),
			"Errors.InvalidTransition",
		),
		Current:   current,
		Attempted: attempted,
	}
}

// ForbiddenError reports a role or ownership check failure, distinct from
// InvalidTransitionError.
type ForbiddenError struct {
	*BaseError
	Action string
}

func NewForbiddenError(action string) *ForbiddenError {
	return &ForbiddenError{
		BaseError: NewError("FORBIDDEN", fmt.Sprintf("not allowed to %s", action), "Errors.Forbidden"),
		Action:    action,
	}
}

// ConflictError reports a race lost against another actor's concurrent
// transition. Retryable by the caller after a refetch, never retried
// inside the services.
type ConflictError struct {
	*BaseError
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{BaseError: NewError("CONFLICT", message, "Errors.Conflict")}
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	*BaseError
	Field string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		BaseError: NewError("VALIDATION", message, "Errors.Validation"),
		Field:     field,
	}
}

func NewFieldRequiredError(field, localeKey string) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			Code:      "FIELD_REQUIRED",
			Message:   fmt.Sprintf("%s is required", field),
			LocaleKey: localeKey,
		},
		Field: field,
	}
}

// Unwrap exposes the embedded BaseError so errors.As can reach the shared
// code and locale key from any typed error.
func (e *NotFoundError) Unwrap() error          { return e.BaseError }
func (e *InvalidTransitionError) Unwrap() error { return e.BaseError }
func (e *ForbiddenError) Unwrap() error         { return e.BaseError }
func (e *ConflictError) Unwrap() error          { return e.BaseError }
func (e *ValidationError) Unwrap() error        { return e.BaseError }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// HTTPStatus maps a service error to the status code controllers respond with.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case IsForbidden(err):
		return http.StatusForbidden
	case IsConflict(err), IsInvalidTransition(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
