package records

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why an operation failed.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is returned by every Manager operation that does not succeed.
type Error struct {
	Kind    Kind
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

func (e *Error) Status() int {
	return e.Kind.Status()
}

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func invalid(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func backend(msg string, err error) *Error {
	return &Error{Kind: KindBackend, Message: msg, Err: err}
}

var (
	errNotFound     = &Error{Kind: KindNotFound, Message: "record not found"}
	errForbidden    = &Error{Kind: KindForbidden, Message: "this address may not access the record"}
	errUnauthorized = &Error{Kind: KindUnauthorized, Message: "invalid password"}
)
