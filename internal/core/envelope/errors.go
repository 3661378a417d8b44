package envelope

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller can recover from it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindConfirmationExpired
	KindPermissionDenied
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid-input"
	case KindNotFound:
		return "not-found"
	case KindConfirmationExpired:
		return "confirmation-expired"
	case KindPermissionDenied:
		return "permission-denied"
	case KindTransient:
		return "transient-infrastructure"
	default:
		return "internal"
	}
}

// Code is the stable machine-readable error code carried by a Failure.
type Code string

const (
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConfirmationExpired Code = "CONFIRMATION_EXPIRED"
	CodePermissionDenied    Code = "PERMISSION_DENIED"
	CodeDatabaseError       Code = "DATABASE_ERROR"
	CodeCacheUnavailable    Code = "CACHE_UNAVAILABLE"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is a classified error. Field is set for validation failures and names
// the offending request field.
type Error struct {
	Kind            Kind
	Code            Code
	Field           string
	Message         string
	SuggestedAction string
	Err             error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// InvalidInput reports a request value the caller must correct.
func InvalidInput(field, message string) *Error {
	return &Error{
		Kind:            KindInvalidInput,
		Code:            CodeInvalidInput,
		Field:           field,
		Message:         message,
		SuggestedAction: fmt.Sprintf("Correct the %q parameter and try again.", field),
	}
}

// NotFound reports a referenced entity that does not exist or is not visible
// to the caller.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:            KindNotFound,
		Code:            CodeNotFound,
		Message:         fmt.Sprintf("%s %q not found", entity, id),
		SuggestedAction: fmt.Sprintf("List %ss to find a valid id.", entity),
	}
}

// ConfirmationExpired reports a pending confirmation that was already consumed
// or outlived its TTL.
func ConfirmationExpired(confirmationID string) *Error {
	return &Error{
		Kind:            KindConfirmationExpired,
		Code:            CodeConfirmationExpired,
		Message:         fmt.Sprintf("confirmation %q has expired or was already used", confirmationID),
		SuggestedAction: "Re-issue the original request to obtain a new confirmation.",
	}
}

// PermissionDenied reports a caller lacking the required capability.
func PermissionDenied(message string) *Error {
	return &Error{
		Kind:            KindPermissionDenied,
		Code:            CodePermissionDenied,
		Message:         message,
		SuggestedAction: "Ask an administrator for the required role.",
	}
}

// Database wraps a relational store failure. The wrapped error is never shown
// to the caller.
func Database(err error) *Error {
	return &Error{
		Kind:            KindTransient,
		Code:            CodeDatabaseError,
		Message:         "the data store is temporarily unavailable",
		SuggestedAction: "Try again in a few moments.",
		Err:             err,
	}
}

// CacheUnavailable wraps a confirmation cache failure.
func CacheUnavailable(err error) *Error {
	return &Error{
		Kind:            KindTransient,
		Code:            CodeCacheUnavailable,
		Message:         "the confirmation service is temporarily unavailable",
		SuggestedAction: "Try again in a few moments.",
		Err:             err,
	}
}

// Internal wraps an unclassified failure.
func Internal(err error) *Error {
	return &Error{
		Kind:            KindInternal,
		Code:            CodeInternal,
		Message:         "an unexpected error occurred",
		SuggestedAction: "Try again; contact support if the problem persists.",
		Err:             err,
	}
}

// Classify returns the *Error in err's chain, or an internal error wrapping err.
func Classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// FromError converts any error into the error variant of the envelope.
// Wrapped causes are dropped so nothing internal leaks to the caller.
func FromError(err error) Failure {
	e := Classify(err)
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	return Failure{
		Code:            e.Code,
		Message:         msg,
		SuggestedAction: e.SuggestedAction,
		Field:           e.Field,
	}
}
