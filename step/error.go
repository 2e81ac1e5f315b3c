package step

import (
	"errors"
	"fmt"
)

// FailureClass partitions handler failures by how the engine reacts.
type FailureClass string

const (
	// ClassTransient marks infrastructure blips (network, timeouts).
	// Retried automatically with exponential backoff up to the rule's
	// budget.
	ClassTransient FailureClass = "TRANSIENT"

	// ClassBusiness marks domain rule failures (validation, AML hit).
	// Never retried; escalates to an incident immediately.
	ClassBusiness FailureClass = "BUSINESS"

	// ClassSystem marks bugs and schema errors, including handler
	// panics. Never retried; escalates to an incident immediately.
	ClassSystem FailureClass = "SYSTEM"
)

// Error is a classified step failure. Handlers return one of these (via
// Transient, Business, or System) to steer retry and escalation; any
// other error is classified SYSTEM.
type Error struct {
	Class   FailureClass
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("step: %s failure [%s]: %s", e.Class, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Transient builds a retryable failure.
func Transient(code, message string) *Error {
	return &Error{Class: ClassTransient, Code: code, Message: message}
}

// Business builds a terminal domain failure.
func Business(code, message string) *Error {
	return &Error{Class: ClassBusiness, Code: code, Message: message}
}

// System builds a terminal infrastructure/bug failure.
func System(code, message string) *Error {
	return &Error{Class: ClassSystem, Code: code, Message: message}
}

// Wrap attaches a cause for errors.Is/As chains.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// Classify coerces an arbitrary handler error into a classified one.
// Unclassified errors are SYSTEM failures: an error a handler did not
// deliberately mark transient must not burn retry budget silently.
func Classify(err error) *Error {
	var stepErr *Error
	if errors.As(err, &stepErr) {
		return stepErr
	}
	return &Error{
		Class:   ClassSystem,
		Code:    "UNCLASSIFIED",
		Message: err.Error(),
		cause:   err,
	}
}
