// Package apperr defines the classified failures handlers raise and the
// dispatcher turns into user-facing replies.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a member of the closed error taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindConflict
)

// String returns the taxonomy name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindUnauthorized:
		return "Unauthorized"
	case KindConflict:
		return "Conflict"
	default:
		return "InternalServerError"
	}
}

// Status maps the kind to its HTTP-style status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DefaultMessage is used when an error is raised with an empty message.
func (k Kind) DefaultMessage() string {
	switch k {
	case KindNotFound:
		return "Not found."
	case KindForbidden:
		return "Forbidden."
	case KindUnauthorized:
		return "Unauthorized."
	case KindConflict:
		return "Conflict."
	default:
		return "Something went wrong!"
	}
}

// Error is a classified failure. Message is safe to show users; Cause is not.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.DefaultMessage()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Status returns the HTTP-style status of the error's kind.
func (e *Error) Status() int { return e.Kind.Status() }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error that keeps the underlying cause for logs.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound reports a missing resource (404).
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden reports an authenticated caller lacking permission (403).
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Unauthorized reports a caller that could not be identified (401).
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Conflict reports a request clashing with current state (409).
func Conflict(message string) *Error { return New(KindConflict, message) }

// Internal reports a failure on the bot's side (500).
func Internal(message string) *Error { return New(KindInternal, message) }

// As finds the first classified error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
