package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes carried on Error.Code.
const (
	CodeInvalidInput      = "invalid_input"
	CodeIOFailure         = "io_failure"
	CodeProcessingFailure = "processing_failure"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeInternal          = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidInput(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidInput, fmt.Errorf(format, args...))
}

// IOFailure reports that a durable side effect (object upload) did not happen.
func IOFailure(err error) *Error {
	return New(http.StatusBadGateway, CodeIOFailure, err)
}

// ProcessingFailure is recorded on the study by the worker; it never reaches an HTTP client.
func ProcessingFailure(err error) *Error {
	return New(http.StatusInternalServerError, CodeProcessingFailure, err)
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeConflict, fmt.Errorf(format, args...))
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}
