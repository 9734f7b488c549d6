// Package apierr defines the stable error kinds every gateway operation
// reports. Each failure carries a machine-readable kind and a human-readable
// message; broker-reported messages pass through verbatim.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind string

const (
	// KindAuth: bad credentials, missing token, broker rejected login.
	KindAuth Kind = "auth"
	// KindBroker: broker returned a non-success envelope.
	KindBroker Kind = "broker"
	// KindValidation: a required field was missing before any call was made.
	KindValidation Kind = "validation"
	// KindNotFound: unknown broker id, symbol, order, or position.
	KindNotFound Kind = "not_found"
	// KindInternal: transport or serialization failure.
	KindInternal Kind = "internal"
)

// Error is the gateway error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Errors by kind, so errors.Is(err, apierr.Auth("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Auth builds an authentication error.
func Auth(format string, args ...any) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

// Broker wraps a broker-reported failure, preserving the broker's message.
func Broker(message string) *Error {
	return &Error{Kind: KindBroker, Message: message}
}

// Validation builds a missing/invalid-input error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a transport or serialization failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
