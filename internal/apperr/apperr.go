// Package apperr carries failures that are reported back to a single
// connection. The Code selects the literal the client sees; Message and
// Cause stay server side for logs.
package apperr

import "errors"

type Code string

const (
	CodeBadMessage         Code = "bad_message"
	CodeNotManagerEstimate Code = "not_manager_estimate"
	CodeEstimationFailed   Code = "estimation_failed"
	CodeCantSkip           Code = "cant_skip"
	CodeCantStartTimer     Code = "cant_start_timer"
	CodeInvalidEstimate    Code = "invalid_estimate"
)

// Reply is the exact text sent to the client for c.
func (c Code) Reply() string {
	switch c {
	case CodeNotManagerEstimate:
		return "Only manager can finalize estimate"
	case CodeEstimationFailed:
		return "Estimation failed"
	case CodeCantSkip:
		return "Can't skip"
	case CodeCantStartTimer:
		return "Can't start timer"
	case CodeInvalidEstimate:
		return "Invalid estimate"
	default:
		return "Something went wrong"
	}
}

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, falling back to CodeBadMessage for
// anything that is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeBadMessage
}
