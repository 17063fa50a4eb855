package client

import (
	"errors"
	"net/http"
)

// Kind classifies every error returned by Client. It is decided once, when
// the response is decoded, so callers never look at status codes.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a local check that failed before any request was sent.
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	// KindGone is returned for events that are full or over and for expired
	// reset tokens.
	KindGone
	KindTooManyRequests
	KindServer
	// KindNetwork covers transport failures and unreadable responses.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	case KindTooManyRequests:
		return "too_many_requests"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	// Status is zero for local and network errors.
	Status int
	// Message is safe to show to a user as is. For backend errors it is the
	// "error" string of the response body.
	Message string
	// Field names the input a validation error is about, if any.
	Field string
	Err   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnknown when err did not come from
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

func validationErr(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func networkErr(action string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: "failed to " + action, Err: err}
}

func kindFromStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusGone:
		return KindGone
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	}
	if status >= http.StatusInternalServerError {
		return KindServer
	}

	return KindUnknown
}
