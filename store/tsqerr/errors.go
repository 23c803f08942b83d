// Package tsqerr defines the shared error taxonomy used across the tasque
// store.
//
// The pivotal type is [Error]. Every failure the store produces that a
// caller (CLI front-end, embedding program, or test) needs to branch on
// carries a stable [Code], a human [Error.Error] message, and optional
// [Error.Details] for machine consumption.
package tsqerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure. Codes are stable across releases;
// callers may switch on them.
type Code string

const (
	ValidationError      Code = "VALIDATION_ERROR"
	NotInitialized       Code = "NOT_INITIALIZED"
	TaskNotFound         Code = "TASK_NOT_FOUND"
	TaskIDAmbiguous      Code = "TASK_ID_AMBIGUOUS"
	NotFound             Code = "NOT_FOUND"
	DependencyCycle      Code = "DEPENDENCY_CYCLE"
	DuplicateCycle       Code = "DUPLICATE_CYCLE"
	ClaimConflict        Code = "CLAIM_CONFLICT"
	InvalidStatus        Code = "INVALID_STATUS"
	SpecValidationFailed Code = "SPEC_VALIDATION_FAILED"
	LockHeld             Code = "LOCK_HELD"
	IOError              Code = "IO_ERROR"
	InternalError        Code = "INTERNAL_ERROR"
)

// exitCodes maps each Code to the process exit code defined in spec.md §7.
var exitCodes = map[Code]int{
	ValidationError:      1,
	NotInitialized:       2,
	TaskNotFound:         1,
	TaskIDAmbiguous:      1,
	NotFound:             1,
	DependencyCycle:      1,
	DuplicateCycle:       1,
	ClaimConflict:        1,
	InvalidStatus:        1,
	SpecValidationFailed: 1,
	LockHeld:             2,
	IOError:              2,
	InternalError:        2,
}

// Error is a tasque store error: a stable code plus a human message and
// optional structured details, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

// New creates an *Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error that carries cause as its Unwrap target, the way
// cue/errors.Wrap attaches a child error to a parent message.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails returns a copy of e with Details set, for fluent construction
// at the call site (e.g. CLAIM_CONFLICT with the existing assignee).
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

func (e *Error) Error() string {
	if e.cause != nil {
		if e.Message == "" {
			return e.cause.Error()
		}
		return fmt.Sprintf("%s: %s", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target has the same Code as e, so callers can write
// errors.Is(err, tsqerr.New(tsqerr.TaskNotFound, "")) — or, more idiomatically,
// use [CodeOf] directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ExitCode returns the process exit code for e, per spec.md §7.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Code]; ok {
		return code
	}
	return 2
}

// CodeOf extracts the Code of err if it is (or wraps) an *Error, and the
// zero Code otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitCode returns the process exit code for any error: 0 for nil, the
// mapped code for an *Error, and 2 (internal/unavailable) for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return 2
}
