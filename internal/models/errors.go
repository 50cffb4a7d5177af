package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the message lifecycle.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // bad input
	KindNotFound   ErrorKind = "not_found"  // referenced conversation or user absent
	KindAuth       ErrorKind = "auth"       // carrier OAuth or token rejected
	KindRequest    ErrorKind = "request"    // carrier rejected the request shape
	KindTransport  ErrorKind = "transport"  // network failure or timeout
	KindGateway    ErrorKind = "gateway"    // unexpected carrier response
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrAuth       = &Error{Kind: KindAuth}
	ErrRequest    = &Error{Kind: KindRequest}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrGateway    = &Error{Kind: KindGateway}
)

// NewError builds a classified error with an optional cause.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Errorf builds a classified error without a cause.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrAuth) works
// for every auth failure regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether resubmitting the same request may succeed:
// after a forced token refresh (auth) or a backoff (transport).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindTransport:
		return true
	}
	return false
}
