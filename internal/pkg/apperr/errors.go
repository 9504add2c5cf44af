// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindForbidden
	KindNotFound
	KindConfiguration
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified error. Code is a stable machine-readable identifier,
// Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by identity or by code, so a wrapped copy
// produced by Wrap still satisfies errors.Is against its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Code == t.Code && e.Kind == t.Kind)
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error { return New(KindValidation, code, message) }
func Conflict(code, message string) *Error   { return New(KindConflict, code, message) }
func Authentication(code, message string) *Error {
	return New(KindAuthentication, code, message)
}
func Forbidden(code, message string) *Error { return New(KindForbidden, code, message) }
func NotFound(code, message string) *Error  { return New(KindNotFound, code, message) }
func Configuration(code, message string) *Error {
	return New(KindConfiguration, code, message)
}
func Upstream(code, message string) *Error { return New(KindUpstream, code, message) }

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
