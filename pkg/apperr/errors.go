// Package apperr carries the failure taxonomy shared by the broker client,
// the tool dispatcher and the document renderer.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so the caller can act on it.
type Kind string

const (
	// Validation marks input rejected before any remote call.
	Validation Kind = "VALIDATION"
	// Unavailable marks a broker that cannot be reached.
	Unavailable Kind = "UNAVAILABLE"
	// Timeout marks a call that exceeded its deadline.
	Timeout Kind = "TIMEOUT"
	// Protocol marks a reply that does not match the expected shape.
	Protocol Kind = "PROTOCOL"
	// Partial marks a multi-part request where only some parts succeeded.
	Partial Kind = "PARTIAL"
	// Remote marks a broker that answered but reported a failure.
	Remote Kind = "REMOTE"
)

// Error is the application failure type. Op names the failing operation,
// Hint carries a remediation suggestion for the reader of the error document.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Hint    string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with formatting.
func Newf(kind Kind, format string, a ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, a...))
}

// WithOp sets the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithHint sets the remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithField names the offending input field.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithError wraps an underlying error.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// ValidationError creates a VALIDATION error for a field.
func ValidationError(field, message string) *Error {
	return New(Validation, message).WithField(field)
}

// ProtocolErrorf creates a PROTOCOL error with formatting.
func ProtocolErrorf(format string, a ...interface{}) *Error {
	return Newf(Protocol, format, a...)
}

// KindOf extracts the kind from err. Context deadlines map to TIMEOUT,
// anything unclassified maps to UNAVAILABLE.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout
	}
	return Unavailable
}

// As converts any error into *Error, classifying foreign errors with KindOf.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return New(KindOf(err), err.Error()).WithError(err)
}

// DefaultHint returns the generic remediation advice for a kind.
func DefaultHint(kind Kind) string {
	switch kind {
	case Validation:
		return "Correct the request arguments and call again"
	case Unavailable:
		return "Verify the options order flow data broker is running and reachable"
	case Timeout:
		return "The data broker did not answer in time; retry shortly or raise the call timeout"
	case Protocol:
		return "The data broker reply was not understood; check that client and broker versions match"
	case Partial:
		return "Review the rejected configurations below and resubmit them"
	case Remote:
		return "Inspect the data broker logs for the reported failure"
	default:
		return ""
	}
}
