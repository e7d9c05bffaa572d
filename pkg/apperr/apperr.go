// Package apperr is the domain error taxonomy shared by the lifecycle engine
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindForbidden      Kind = "FORBIDDEN"
	KindInvalidState   Kind = "INVALID_STATE"
	KindAlreadyUpvoted Kind = "ALREADY_UPVOTED"
	KindNotFound       Kind = "NOT_FOUND"
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindAlreadyUpvoted:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error carrying its Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets errors.Is match on kind: errors.Is(err, &apperr.Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newf(KindInvalidState, format, args...)
}

func AlreadyUpvoted() *Error {
	return &Error{Kind: KindAlreadyUpvoted, Message: "you have already upvoted this grievance"}
}

func NotFound(what string) *Error {
	return newf(KindNotFound, "%s not found", what)
}

// KindOf returns the Kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is a domain error of kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
