package bridge

import (
	"errors"
	"fmt"
)

// Code classifies engine-level failures for callers.
type Code string

const (
	CodeConnectionTimeout   Code = "connection_timeout"
	CodeConnectionError     Code = "connection_error"
	CodeSessionNotFound     Code = "session_not_found"
	CodeSessionUnavailable  Code = "session_unavailable"
	CodeRequestTimeout      Code = "request_timeout"
	CodeRemoteProtocolError Code = "remote_protocol_error"
	CodeLimitExceeded       Code = "limit_exceeded"
	CodeInvalidInput        Code = "invalid_input"
)

// Error is the typed failure returned by every engine operation. The
// engine never retries on its own; callers decide based on Code.
type Error struct {
	Code    Code
	Message string
	Err     error
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

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the failure code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
