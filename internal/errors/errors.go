// Package errors provides unified error handling with structured error codes.
// Codes classify where in the session lifecycle a failure occurred so the
// control surface can surface a single human-readable notice.
package errors

import (
	"fmt"
	"net/http"
)

// Code classifies platform errors.
type Code string

const (
	CodeUnknown         Code = "unknown"
	CodeInternal        Code = "internal"
	CodeInvalidArgument Code = "invalid_argument"
	CodeUnavailable     Code = "unavailable"
	CodeTimeout         Code = "timeout"
	CodeDeviceDenied    Code = "device_denied"    // microphone access refused or device unavailable
	CodeDeviceFailed    Code = "device_failed"    // device opened but stopped working
	CodeAnalysisFailed  Code = "analysis_failed"  // oracle analyze round trip failed
	CodeSynthesisFailed Code = "synthesis_failed" // oracle synthesize round trip failed
	CodeDecodeFailed    Code = "decode_failed"    // synthesized payload could not be decoded
	CodePlaybackFailed  Code = "playback_failed"
	CodeModeStoreFailed Code = "mode_store_failed" // cultural mode cache read/write failed
	CodeSessionConflict Code = "session_conflict"  // intent not valid in the current state
	CodeRateLimited     Code = "rate_limited"
)

// httpStatusMap maps codes to HTTP status codes for API responses.
var httpStatusMap = map[Code]int{
	CodeUnknown:         http.StatusInternalServerError,
	CodeInternal:        http.StatusInternalServerError,
	CodeInvalidArgument: http.StatusBadRequest,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeTimeout:         http.StatusGatewayTimeout,
	CodeDeviceDenied:    http.StatusForbidden,
	CodeDeviceFailed:    http.StatusInternalServerError,
	CodeAnalysisFailed:  http.StatusBadGateway,
	CodeSynthesisFailed: http.StatusBadGateway,
	CodeDecodeFailed:    http.StatusBadGateway,
	CodePlaybackFailed:  http.StatusInternalServerError,
	CodeModeStoreFailed: http.StatusInternalServerError,
	CodeSessionConflict: http.StatusConflict,
	CodeRateLimited:     http.StatusTooManyRequests,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// HTTPStatus returns the corresponding HTTP status code.
func (e *AppError) HTTPStatus() int {
	if s, ok := httpStatusMap[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Notice returns the user-visible text for this error. Cause chains and
// metadata stay in the logs; the user sees one readable sentence.
func (e *AppError) Notice() string {
	return e.Message
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Notice returns the user-visible text for any error. Foreign errors get a
// generic sentence so internal detail never reaches the user.
func Notice(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Notice()
	}
	return "something went wrong, please try again"
}

// CodeOf extracts the code from an error, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// FromHTTPStatus maps an HTTP status from the oracle service to a code
// (best effort).
func FromHTTPStatus(status int) Code {
	switch {
	case status == http.StatusBadRequest:
		return CodeInvalidArgument
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return CodeUnavailable
	case status >= 500:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// IsRetryable returns true if the error is potentially retryable. The
// session cycle itself never retries; this drives the boot-time health
// probe and circuit breaker accounting only.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout, CodeRateLimited:
		return true
	default:
		return false
	}
}
