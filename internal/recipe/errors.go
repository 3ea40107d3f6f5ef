package recipe

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindAuth                  ErrorKind = "unauthorized"
	KindValidation            ErrorKind = "invalid_request"
	KindDeclined              ErrorKind = "extraction_declined"
	KindStructural            ErrorKind = "invalid_recipe"
	KindJSONRecoveryExhausted ErrorKind = "invalid_json"
	KindModelUnavailable      ErrorKind = "model_unavailable"
	KindInternal              ErrorKind = "internal_error"
)

// Error is the classified failure returned by every core operation.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Structural(field, format string, args ...any) *Error {
	return newError(KindStructural, field, format, args...)
}

func Declined(description string) *Error {
	return &Error{Kind: KindDeclined, Field: "description", Message: "Recipe extraction failed: " + description}
}

func RecoveryExhausted(err error) *Error {
	return &Error{Kind: KindJSONRecoveryExhausted, Message: "Invalid JSON response after repair attempt", Err: err}
}

func ModelUnavailable(err error) *Error {
	return &Error{Kind: KindModelUnavailable, Message: "model unavailable", Err: err}
}

func Invalid(field, format string, args ...any) *Error {
	return newError(KindValidation, field, format, args...)
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf classifies err; anything not produced by this package is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
