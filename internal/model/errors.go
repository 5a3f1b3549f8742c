// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures returned across the facade
type ErrorCode string

const (
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodePrintFailed      ErrorCode = "PRINT_FAILED"
	ErrCodeEncodingError    ErrorCode = "ENCODING_ERROR"
	ErrCodeDrawerFailed     ErrorCode = "DRAWER_FAILED"
	ErrCodeBusy             ErrorCode = "BUSY"
	ErrCodeNotImplemented   ErrorCode = "NOT_IMPLEMENTED"
)

// Error is the typed error surfaced to callers
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, ErrBusy) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// NewError creates a typed error
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons by code
var (
	ErrInvalidArgument  = &Error{Code: ErrCodeInvalidArgument}
	ErrConnectionFailed = &Error{Code: ErrCodeConnectionFailed}
	ErrPrintFailed      = &Error{Code: ErrCodePrintFailed}
	ErrEncoding         = &Error{Code: ErrCodeEncodingError}
	ErrDrawerFailed     = &Error{Code: ErrCodeDrawerFailed}
	ErrBusy             = &Error{Code: ErrCodeBusy}
)

// InvalidArgument builds an INVALID_ARGUMENT error
func InvalidArgument(format string, args ...interface{}) *Error {
	return NewError(ErrCodeInvalidArgument, fmt.Sprintf(format, args...), nil)
}

// Busy builds a BUSY error
func Busy(format string, args ...interface{}) *Error {
	return NewError(ErrCodeBusy, fmt.Sprintf(format, args...), nil)
}

// CodeOf extracts the error code, or "" when err is not typed
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// WithCode wraps err as a typed error unless it already carries a code
func WithCode(code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return NewError(code, message, err)
}
