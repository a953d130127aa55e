package lnurl

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	BadRequest       ErrorCode = "bad-request"
	NotAvailable     ErrorCode = "not-available"     // node or mint unreachable, retryable
	NotFound         ErrorCode = "not-found"         // no such record
	AlreadyExists    ErrorCode = "already-exists"    // duplicate record
	PersistenceError ErrorCode = "persistence"       // checkpoint or store write failed
	ProtocolMismatch ErrorCode = "protocol-mismatch" // unexpected RPC response shape
	ConfigError      ErrorCode = "config"            // fatal at bootstrap
	UnknownError     ErrorCode = "unknown-error"
)

type ErrorInfo struct {
	Code    ErrorCode // machine-readble ErrorCode enumeration
	Message string    // human-readable debug message (in production, logged on the server only)
}

func (e *ErrorInfo) Error() string {
	return string(e.Message)
}

func NewErr(code ErrorCode, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}

func IsAlreadyExistsError(err error) bool {
	return IsError(err, AlreadyExists)
}

func IsNotAvailableError(err error) bool {
	return IsError(err, NotAvailable)
}

// IsError reports whether err (or anything it wraps) is an ErrorInfo
// carrying the given code.
func IsError(err error, ofType ErrorCode) bool {
	var e *ErrorInfo
	if errors.As(err, &e) {
		return e.Code == ofType
	}
	return false
}
