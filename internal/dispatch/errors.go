package dispatch

import (
	"errors"
	"fmt"
)

// Code classifies a dispatch failure. Adapters map codes to their
// transport's status values.
type Code int

const (
	CodeInternal Code = iota
	CodeNotFound
	CodeInvalidArgument
	CodeHandler
	CodeDeadlineExceeded
	CodeUnavailable
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not_found"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeHandler:
		return "handler_error"
	case CodeDeadlineExceeded:
		return "deadline_exceeded"
	case CodeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is returned by Table.Call for every failed call.
type Error struct {
	Code Code
	// Tool is the requested tool name.
	Tool string
	// Field names the offending parameter for CodeInvalidArgument.
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: tool %q field %q: %s", e.Code, e.Tool, e.Field, msg)
	case e.Tool != "":
		return fmt.Sprintf("%s: tool %q: %s", e.Code, e.Tool, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of err when it is (or wraps) a *Error, and
// CodeInternal otherwise.
func CodeOf(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeInternal
}

// ArgumentError reports a request value that does not fit its declared
// parameter type.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
