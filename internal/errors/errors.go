// Package errors defines the typed error kinds the debug adapter returns to
// the DAP client, per the error handling design: every operation returns a
// response or one of a small fixed set of structured errors, and every error
// is also handed to the output channel so the editor's debug console shows it.
package errors

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
)

// Kind enumerates the error categories the DAP request surface can produce.
type Kind int

const (
	// NotLoaded means the requested script/source is not in the cache and
	// cannot be resolved.
	NotLoaded Kind = iota
	// UnknownFunction means a setFunctionBreakpoints name does not resolve
	// or is malformed.
	UnknownFunction
	// InvalidHandle means a frameId/variablesReference/threadId does not
	// resolve to a live node.
	InvalidHandle
	// NotSupported means the request is accepted syntactically but the
	// server deliberately declines it (instruction breakpoints, etc).
	NotSupported
	// SerializationError means a node failed to serialize to its DAP
	// protocol representation.
	SerializationError
)

func (k Kind) String() string {
	switch k {
	case NotLoaded:
		return "NotLoaded"
	case UnknownFunction:
		return "UnknownFunction"
	case InvalidHandle:
		return "InvalidHandle"
	case NotSupported:
		return "NotSupported"
	case SerializationError:
		return "SerializationError"
	default:
		return "Unknown"
	}
}

// Error is the structured error type returned by the core components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &errors.Error{Kind: NotLoaded}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a new Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a new Error of the given kind, recording the cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind of err, returning (kind, true) if err (or
// something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Format renders err for the DAP output channel, colorized the way the
// teacher's error formatter colorizes compile/runtime errors when writing to
// a terminal.
func Format(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		bold := color.New(color.Bold, color.FgRed)
		return fmt.Sprintf("%s %s\n", bold.Sprintf("[%s]", e.Kind), e.Message)
	}
	return fmt.Sprintf("%s %s\n", color.New(color.Bold, color.FgRed).Sprint("[Error]"), err.Error())
}
