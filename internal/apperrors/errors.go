// Package apperrors defines the error taxonomy shared by the orchestrator,
// its HTTP handlers and the callback endpoints.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindForbidden      Kind = "forbidden"
	KindForbiddenOwner Kind = "forbidden_owner"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindIntegrity      Kind = "integrity"
	KindDependency     Kind = "dependency"
	KindInternal       Kind = "internal"
)

// HTTPStatus maps a kind to the status code returned by handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden, KindForbiddenOwner:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed later without changes.
func (k Kind) Retryable() bool {
	return k == KindDependency
}

// Error is the domain error type.
type Error struct {
	Kind     Kind
	Code     Code              // machine-readable, stable
	Message  string            // user-facing
	Metadata map[string]string // extra context for logs
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so sentinel-style comparisons work through wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata returns a copy of e carrying the given key/value.
func (e *Error) WithMetadata(key, value string) *Error {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

func newErr(kind Kind, code Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func Validation(code Code, msg string) *Error {
	return newErr(KindValidation, code, msg, nil)
}

func Forbidden(code Code, msg string) *Error {
	return newErr(KindForbidden, code, msg, nil)
}

func ForbiddenOwner(msg string) *Error {
	return newErr(KindForbiddenOwner, CodeNotOwner, msg, nil)
}

func NotFound(code Code, msg string) *Error {
	return newErr(KindNotFound, code, msg, nil)
}

func Conflict(code Code, msg string) *Error {
	return newErr(KindConflict, code, msg, nil)
}

func Integrity(code Code, msg string, cause error) *Error {
	return newErr(KindIntegrity, code, msg, cause)
}

func Dependency(code Code, msg string, cause error) *Error {
	return newErr(KindDependency, code, msg, cause)
}

// Internal wraps an unexpected failure (storage, encoding) behind a generic message.
func Internal(msg string, cause error) *Error {
	return newErr(KindInternal, CodeInternal, msg, cause)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
