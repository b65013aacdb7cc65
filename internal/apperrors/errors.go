// Package apperrors defines the single error taxonomy shared by every
// component of the memory engine (spec §7).
package apperrors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error so that callers and the retry/backoff layer can
// decide how to react without inspecting error strings.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindValidation       Kind = "VALIDATION"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindTimeout          Kind = "TIMEOUT"
	KindTransient        Kind = "TRANSIENT"
	KindUnavailable      Kind = "UNAVAILABLE"
	KindInternal         Kind = "INTERNAL"
)

// Error is the engine-wide error type. Component, Operation and Tenant carry
// the context spec §7 requires internal logs to retain; Message is the
// terse, implementation-detail-free text safe to surface to callers.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Tenant    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s.%s]: %s: %v", e.Kind, e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s.%s]: %s", e.Kind, e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error. component/operation are free-form identifiers such as
// "storage" / "create_memory".
func New(kind Kind, component, operation, message string) *Error {
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message}
}

// Wrap attaches component/operation context to an existing error, preserving
// its Kind when the cause is itself an *Error.
func Wrap(err error, component, operation, message string) *Error {
	if err == nil {
		return nil
	}
	kind := KindInternal
	var ae *Error
	if errors.As(err, &ae) {
		kind = ae.Kind
	}
	return &Error{Kind: kind, Component: component, Operation: operation, Message: message, Err: err}
}

// WithTenant returns a copy of e annotated with the tenant (organization) id
// under which the failing operation ran.
func (e *Error) WithTenant(tenant string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Tenant = tenant
	return &cp
}

func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool         { return Is(err, KindNotFound) }
func IsConflict(err error) bool         { return Is(err, KindConflict) }
func IsValidation(err error) bool       { return Is(err, KindValidation) }
func IsPermissionDenied(err error) bool { return Is(err, KindPermissionDenied) }
func IsRateLimited(err error) bool      { return Is(err, KindRateLimited) }
func IsTimeout(err error) bool          { return Is(err, KindTimeout) }
func IsTransient(err error) bool        { return Is(err, KindTransient) }
func IsUnavailable(err error) bool      { return Is(err, KindUnavailable) }
func IsInternal(err error) bool         { return Is(err, KindInternal) }

// Retryable reports whether an error is classified for retry: transient
// faults and rate limits. Timeouts (KindTimeout) and every other kind
// report false.
func Retryable(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Kind {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}

func NotFound(component, operation, message string) *Error {
	return New(KindNotFound, component, operation, message)
}

func Conflict(component, operation, message string) *Error {
	return New(KindConflict, component, operation, message)
}

func Validation(component, operation, message string) *Error {
	return New(KindValidation, component, operation, message)
}

func PermissionDenied(component, operation, message string) *Error {
	return New(KindPermissionDenied, component, operation, message)
}

func Internal(component, operation, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Component: component, Operation: operation, Message: message, Err: cause}
}

func Transient(component, operation, message string, cause error) *Error {
	return &Error{Kind: KindTransient, Component: component, Operation: operation, Message: message, Err: cause}
}

func Unavailable(component, operation, message string) *Error {
	return New(KindUnavailable, component, operation, message)
}
