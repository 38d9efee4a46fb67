// Package errs provides the structured error taxonomy shared across the
// releng components (param model, synchronizer, builder, configurator).
package errs

import (
	"errors"
	"fmt"
)

// Code represents a unique error code within a domain.
type Code string

// Domain categorizes an error by the subsystem that raised it.
type Domain string

// Error domains, one per component of the core pipeline.
const (
	DomainParams    Domain = "params"
	DomainResolver  Domain = "resolver"
	DomainSync      Domain = "sync"
	DomainMachine   Domain = "machine"
	DomainBuilder   Domain = "builder"
	DomainConfigure Domain = "configure"
	DomainInternal  Domain = "internal"
)

// ExitClass groups errors by how the coordinator entry point should react:
// whether the situation is recoverable by the caller (e.g. falling back to
// a source build) or fatal.
type ExitClass int

const (
	// ExitFatal means the coordinator should print the error and exit 1.
	ExitFatal ExitClass = iota
	// ExitRecoverable means the caller may choose to fall back to an
	// alternative strategy (e.g. BundleNotFound -> build from source).
	ExitRecoverable
)

// Error is a structured error with a domain, code, and exit classification.
type Error struct {
	Domain    Domain
	Code      Code
	Message   string
	ExitClass ExitClass

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is implements error comparison for errors.Is: two *Error values match
// when their domain and code agree, independent of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

// WithCause returns a copy of e with the given underlying cause attached.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithMessage returns a copy of e with a replacement message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// WithMessagef returns a copy of e with a formatted replacement message.
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// New creates a new Error.
func New(domain Domain, code Code, class ExitClass, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message, ExitClass: class}
}

// Wrap wraps an existing error with domain/code classification.
func Wrap(err error, domain Domain, code Code, class ExitClass, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message, ExitClass: class, cause: err}
}

// GetExitClass returns the exit classification for err, defaulting to
// ExitFatal when err is not a *Error.
func GetExitClass(err error) ExitClass {
	var e *Error
	if errors.As(err, &e) {
		return e.ExitClass
	}
	return ExitFatal
}

// GetCode returns the error code if err is a *Error, otherwise "".
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDomain returns the error domain if err is a *Error, otherwise "".
func GetDomain(err error) Domain {
	var e *Error
	if errors.As(err, &e) {
		return e.Domain
	}
	return ""
}

// Is delegates to errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
