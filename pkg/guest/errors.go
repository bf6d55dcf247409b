package guest

import (
	"errors"
	"fmt"
)

// Code classifies a resolution or dispatch failure.
type Code string

const (
	// CodeNotDetected means autodetection found no matching guest.
	CodeNotDetected Code = "not_detected"

	// CodeExplicitNotDetected means an explicitly configured guest ID
	// is not present in the registry.
	CodeExplicitNotDetected Code = "explicit_not_detected"

	// CodeCapabilityNotFound means a capability is absent from every
	// guest in the resolution chain.
	CodeCapabilityNotFound Code = "capability_not_found"

	// CodeCapabilityInvalid means a capability is declared for a guest
	// in the chain but does not resolve to an invocable implementation.
	CodeCapabilityInvalid Code = "capability_invalid"

	// CodeCycle means the parent relation of the registry contains a
	// cycle, which would make chain construction unbounded.
	CodeCycle Code = "cycle"
)

// Error is a classified guest-resolution error. All instances are
// terminal for the current operation: the resolver never retries and
// never substitutes a default.
type Error struct {
	// Code is the failure classification.
	Code Code

	// Guest is the most specific guest involved, if any.
	Guest ID

	// Capability is the capability name involved, if any.
	Capability string

	// Value carries the offending configured value for
	// CodeExplicitNotDetected.
	Value string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeNotDetected:
		return "no guest matched the machine"
	case CodeExplicitNotDetected:
		return fmt.Sprintf("configured guest %q is not registered", e.Value)
	case CodeCapabilityNotFound:
		return fmt.Sprintf("guest %s has no capability %q", e.Guest, e.Capability)
	case CodeCapabilityInvalid:
		return fmt.Sprintf("capability %q of guest %s is not invocable", e.Capability, e.Guest)
	case CodeCycle:
		return fmt.Sprintf("guest %s is part of a parent cycle", e.Guest)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Err)
	}
	return string(e.Code)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two guest errors match
// when their codes match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewNotDetectedError reports that autodetection found no match.
func NewNotDetectedError() *Error {
	return &Error{Code: CodeNotDetected}
}

// NewExplicitNotDetectedError reports an unknown configured guest ID.
func NewExplicitNotDetectedError(value string) *Error {
	return &Error{Code: CodeExplicitNotDetected, Value: value}
}

// NewCapabilityNotFoundError reports a capability missing from the
// whole chain. guest is the most specific guest of the chain.
func NewCapabilityNotFoundError(capability string, guest ID) *Error {
	return &Error{Code: CodeCapabilityNotFound, Capability: capability, Guest: guest}
}

// NewCapabilityInvalidError reports a declared but non-invocable
// capability binding. guest is the most specific guest of the chain.
func NewCapabilityInvalidError(capability string, guest ID) *Error {
	return &Error{Code: CodeCapabilityInvalid, Capability: capability, Guest: guest}
}

// NewCycleError reports a cycle in the parent relation at guest.
func NewCycleError(guest ID) *Error {
	return &Error{Code: CodeCycle, Guest: guest}
}

// IsNotDetected returns true if err is a CodeNotDetected guest error.
func IsNotDetected(err error) bool {
	return hasCode(err, CodeNotDetected)
}

// IsExplicitNotDetected returns true if err is a CodeExplicitNotDetected
// guest error.
func IsExplicitNotDetected(err error) bool {
	return hasCode(err, CodeExplicitNotDetected)
}

// IsCapabilityNotFound returns true if err is a CodeCapabilityNotFound
// guest error.
func IsCapabilityNotFound(err error) bool {
	return hasCode(err, CodeCapabilityNotFound)
}

// IsCapabilityInvalid returns true if err is a CodeCapabilityInvalid
// guest error.
func IsCapabilityInvalid(err error) bool {
	return hasCode(err, CodeCapabilityInvalid)
}

// IsCycle returns true if err is a CodeCycle guest error.
func IsCycle(err error) bool {
	return hasCode(err, CodeCycle)
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
