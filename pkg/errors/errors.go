// Package errors defines the error taxonomy shared by the indexing and search
// packages. Every failure surfaced to a caller wraps one of the sentinels
// below, so callers branch with errors.Is and the HTTP layer maps them to
// status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidQuerySyntax = errors.New("invalid query syntax")
	ErrUnknownField       = errors.New("unknown field")
	ErrIndexNotFound      = errors.New("index not found")
	ErrCorruptIndex       = errors.New("corrupt index")
	ErrInvalidDocumentID  = errors.New("invalid document id")
	ErrBuildInProgress    = errors.New("build already in progress")
	ErrIO                 = errors.New("i/o failure")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Cause      error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Err.Error(), e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Errorf builds an AppError whose status code is derived from the sentinel.
func Errorf(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, statusFor(sentinel), format, args...)
}

// Wrap attaches an underlying cause, typically an os or io error, to a
// sentinel. Both remain visible to errors.Is and errors.As.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Cause:      cause,
		Message:    message,
		StatusCode: statusFor(sentinel),
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, sentinel := range []error{
		ErrInvalidArgument, ErrInvalidQuerySyntax, ErrUnknownField,
		ErrIndexNotFound, ErrInvalidDocumentID, ErrBuildInProgress,
		ErrTimeout, ErrCorruptIndex, ErrIO,
	} {
		if errors.Is(err, sentinel) {
			return statusFor(sentinel)
		}
	}
	return http.StatusInternalServerError
}

func statusFor(sentinel error) int {
	switch sentinel {
	case ErrInvalidArgument, ErrInvalidQuerySyntax, ErrUnknownField:
		return http.StatusBadRequest
	case ErrIndexNotFound, ErrInvalidDocumentID:
		return http.StatusNotFound
	case ErrBuildInProgress:
		return http.StatusConflict
	case ErrTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
