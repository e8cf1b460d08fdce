package model

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error so that the transport layer can pick a
// status code without inspecting messages.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindForbidden
	KindUnauthorized
)

// Code is the numeric error code returned to clients.
type Code int

const (
	CodeInvalidParameter    Code = 40000
	CodeInvalidEventTitle   Code = 40001
	CodeInvalidEventTime    Code = 40002
	CodeInvalidEventLayout  Code = 40003
	CodeUnauthorized        Code = 40100
	CodeForbidden           Code = 40300
	CodeEventNotFound       Code = 40401
	CodeSeatNotFound        Code = 40402
	CodeInvalidEventStatus  Code = 40901
	CodeEventNotPublishable Code = 40902
	CodeSeatNotAvailable    Code = 40911
	CodeInvalidSeatStatus   Code = 40912
	CodeTooManyRequests     Code = 42900
	CodeInternal            Code = 50000
)

var codeNames = map[Code]string{
	CodeInvalidParameter:    "INVALID_PARAMETER",
	CodeInvalidEventTitle:   "INVALID_EVENT_TITLE",
	CodeInvalidEventTime:    "INVALID_EVENT_TIME",
	CodeInvalidEventLayout:  "INVALID_EVENT_LAYOUT",
	CodeUnauthorized:        "UNAUTHORIZED",
	CodeForbidden:           "FORBIDDEN",
	CodeEventNotFound:       "EVENT_NOT_FOUND",
	CodeSeatNotFound:        "SEAT_NOT_FOUND",
	CodeInvalidEventStatus:  "INVALID_EVENT_STATUS",
	CodeEventNotPublishable: "EVENT_NOT_PUBLISHABLE",
	CodeSeatNotAvailable:    "SEAT_NOT_AVAILABLE",
	CodeInvalidSeatStatus:   "INVALID_SEAT_STATUS",
	CodeTooManyRequests:     "TOO_MANY_REQUESTS",
	CodeInternal:            "INTERNAL_ERROR",
}

// Name returns the symbolic name of the code, e.g. EVENT_NOT_FOUND.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN_ERROR"
}

// IsSeatConflict reports whether the code belongs to the seat conflict range.
// Clients use it to tell "seat no longer available" apart from event state problems.
func (c Code) IsSeatConflict() bool { return c >= 40910 && c < 40920 }

// Error is the single error type produced by the domain layer.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches on code so that errors.Is(err, ErrSeatNotAvailable) holds for
// every NotAvailable failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrEventNotFound       = &Error{Kind: KindNotFound, Code: CodeEventNotFound, Message: "event not found"}
	ErrSeatNotFound        = &Error{Kind: KindNotFound, Code: CodeSeatNotFound, Message: "seat not found"}
	ErrInvalidEventStatus  = &Error{Kind: KindConflict, Code: CodeInvalidEventStatus, Message: "invalid event status"}
	ErrEventNotPublishable = &Error{Kind: KindConflict, Code: CodeEventNotPublishable, Message: "event cannot be published"}
	ErrSeatNotAvailable    = &Error{Kind: KindConflict, Code: CodeSeatNotAvailable, Message: "seat is not available"}
	ErrInvalidSeatStatus   = &Error{Kind: KindConflict, Code: CodeInvalidSeatStatus, Message: "invalid seat status"}
	ErrForbidden           = &Error{Kind: KindForbidden, Code: CodeForbidden, Message: "forbidden"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
)

// Validation builds a caller-fixable error with a field-level reason.
func Validation(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func conflict(code Code, action, current, expected string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    code,
		Message: fmt.Sprintf("cannot %s: current status %s, expected %s", action, current, expected),
	}
}

// AsError unwraps err into a domain error when possible.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
