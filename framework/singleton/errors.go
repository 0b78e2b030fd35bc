package singleton

import (
	"errors"
	"fmt"
)

// Cause classifies a guard failure.
type Cause int

const (
	// Unknown is the default, unclassified cause.
	Unknown Cause = iota
	// InstanceExists: a second instance of the same concrete identity was
	// constructed while one is alive.
	InstanceExists
	// MissingInheritance: the value does not embed the Base guard where it must.
	MissingInheritance
	// InternalException: an error from a constructor or other collaborator.
	InternalException
	// NoCreateInternal: the lazy accessor is forbidden by the hierarchy's policy.
	NoCreateInternal
	// NoDispose: Dispose was invoked on a non-disposable hierarchy in strict mode.
	NoDispose
	// InstanceExistsMismatch: access through a blocked slot, or a typed lookup
	// that found an instance of a different concrete type.
	InstanceExistsMismatch
	// InstanceRequiresParameters: the default constructor path was used for a
	// type that needs explicit parameters.
	InstanceRequiresParameters
)

var causeNames = map[Cause]string{
	Unknown:                    "Unknown",
	InstanceExists:             "InstanceExists",
	MissingInheritance:         "MissingInheritance",
	InternalException:          "InternalException",
	NoCreateInternal:           "NoCreateInternal",
	NoDispose:                  "NoDispose",
	InstanceExistsMismatch:     "InstanceExistsMismatch",
	InstanceRequiresParameters: "InstanceRequiresParameters",
}

var causeDescriptions = map[Cause]string{
	Unknown:                    "unspecified singleton failure",
	InstanceExists:             "an instance of this concrete type is already alive",
	MissingInheritance:         "the value does not embed the singleton guard",
	InternalException:          "a collaborator failed",
	NoCreateInternal:           "the instance must be constructed explicitly, not through the accessor",
	NoDispose:                  "the singleton must not be disposed",
	InstanceExistsMismatch:     "the live instance does not match the requested type",
	InstanceRequiresParameters: "the type requires explicit parameters to be constructed",
}

// String returns the cause name.
func (c Cause) String() string {
	if n, ok := causeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Cause(%d)", int(c))
}

// Description returns a human-readable explanation of the cause.
func (c Cause) Description() string {
	if d, ok := causeDescriptions[c]; ok {
		return d
	}
	return causeDescriptions[Unknown]
}

// Error is the typed failure returned by guard and registry operations.
type Error struct {
	Cause    Cause
	Identity Identity
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Cause.Description()
	}
	s := "singleton [" + e.Cause.String() + "]"
	if !e.Identity.IsZero() {
		s += " " + e.Identity.String()
	}
	s += ": " + msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap supports error unwrapping.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same cause, so errors.Is(err, ErrNoDispose)
// works regardless of identity and message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Cause == e.Cause
}

// Sentinels for errors.Is.
var (
	ErrUnknown                    = &Error{Cause: Unknown}
	ErrInstanceExists             = &Error{Cause: InstanceExists}
	ErrMissingInheritance         = &Error{Cause: MissingInheritance}
	ErrInternalException          = &Error{Cause: InternalException}
	ErrNoCreateInternal           = &Error{Cause: NoCreateInternal}
	ErrNoDispose                  = &Error{Cause: NoDispose}
	ErrInstanceExistsMismatch     = &Error{Cause: InstanceExistsMismatch}
	ErrInstanceRequiresParameters = &Error{Cause: InstanceRequiresParameters}
)

func newError(cause Cause, id Identity, format string, args ...any) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Cause: cause, Identity: id, Message: msg}
}

// wrapError keeps typed errors as they are and wraps anything else as
// InternalException.
func wrapError(id Identity, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Cause: InternalException, Identity: id, Err: err}
}

// CauseOf extracts the cause from err, or Unknown when err is not a
// singleton error. CauseOf(nil) is Unknown.
func CauseOf(err error) Cause {
	var se *Error
	if errors.As(err, &se) {
		return se.Cause
	}
	return Unknown
}

// RequiresParameters is returned by constructors of types that cannot be
// built from defaults.
//
//	singleton.WithConstructor(func() (*Client, error) {
//	    return nil, singleton.RequiresParameters[*Client]()
//	})
func RequiresParameters[T any]() error {
	return &Error{Cause: InstanceRequiresParameters, Identity: IdentityOf[T]()}
}
