// Package apperrors implements the daemon's closed error taxonomy
// (BadInput, NotFound, Conflict, Internal) and its HTTP wire envelope.
//
// Every handler-facing error is an *AppError; the HTTP surface renders it
// as {"msg": string} per the daemon's error envelope, regardless of which
// taxonomy kind produced it.
package apperrors

import (
	"fmt"
	"net/http"
)

// Kind is one of the daemon's closed error kinds.
type Kind string

const (
	KindBadInput Kind = "bad_input"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindInternal Kind = "internal"
)

// AppError is a taxonomy-classified error with an HTTP status and a
// human-readable message. Details holds additional context that is never
// sent over the wire.
type AppError struct {
	Kind       Kind
	Message    string
	Details    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func statusFor(k Kind) int {
	switch k {
	case KindBadInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, StatusCode: statusFor(kind)}
}

func Wrap(kind Kind, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Kind: kind, Message: message, Details: details, StatusCode: statusFor(kind)}
}

// MsgResponse is the wire envelope the spec mandates for every HTTP error.
type MsgResponse struct {
	Msg string `json:"msg"`
}

// ToResponse renders the error as the daemon's {"msg"} envelope.
func (e *AppError) ToResponse() MsgResponse {
	return MsgResponse{Msg: e.Message}
}

func BadInput(format string, args ...interface{}) *AppError {
	return New(KindBadInput, fmt.Sprintf(format, args...))
}

func NotFound(resource, key string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s %s not found", resource, key))
}

func Conflict(format string, args ...interface{}) *AppError {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Internal(message string, err error) *AppError {
	return Wrap(KindInternal, message, err)
}

// As attempts to recover an *AppError from a generic error, defaulting to
// an Internal-kind wrapper when err is not already one.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return Internal("unexpected error", err)
}
