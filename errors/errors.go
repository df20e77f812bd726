package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConnect  Phase = "connect"  // connection open
	PhaseEncode   Phase = "encode"   // argument encoding
	PhaseDecode   Phase = "decode"   // result decoding
	PhaseRoute    Phase = "route"    // route translation
	PhaseDispatch Phase = "dispatch" // command dispatch
)

// Kind categorizes the error. Connection kinds mirror the engine's
// create-status taxonomy one-to-one and are raised only from Open.
type Kind string

const (
	KindParameter         Kind = "parameter"
	KindThreadCreation    Kind = "thread_creation"
	KindConnectionTimeout Kind = "connection_timeout"
	KindConnectionFailed  Kind = "connection_failed"
	KindClusterConnection Kind = "cluster_connection"
	KindConnectionIO      Kind = "connection_io"
	KindUnknown           Kind = "unknown"

	KindRequest        Kind = "request"         // client-side validation, never crosses the boundary
	KindClosing        Kind = "closing"         // connection closed or closing
	KindCommand        Kind = "command"         // engine-reported command failure
	KindNotImplemented Kind = "not_implemented" // unsupported wire kind
	KindInvalidData    Kind = "invalid_data"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindAllocation     Kind = "allocation"
	KindCanceled       Kind = "canceled"
)

// Error is the structured error type used throughout the binding
type Error struct {
	Phase  Phase
	Kind   Kind
	Detail string
	Cause  error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two errors match when
// their Kind is equal and the target's Phase is either empty or equal,
// so sentinel targets like &Error{Kind: KindClosing} match any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an error with a formatted detail message
func New(phase Phase, kind Kind, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Phase: phase, Kind: kind, Detail: detail}
}

// Wrap creates an error carrying an underlying cause
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// Convenience constructors for common error patterns

// Request creates a client-side validation error. Request errors are
// detected before any engine call is attempted.
func Request(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindRequest, detail, args...)
}

// Closing creates the error every operation observes on a closed or
// closing connection.
func Closing(detail string) *Error {
	return &Error{Phase: PhaseDispatch, Kind: KindClosing, Detail: detail}
}

// Command creates an error for a failure reported by the engine for
// one dispatched command.
func Command(message string) *Error {
	return &Error{Phase: PhaseDispatch, Kind: KindCommand, Detail: message}
}

// NotImplemented creates an error for a wire kind the decoder does not
// support.
func NotImplemented(what string) *Error {
	return &Error{Phase: PhaseDecode, Kind: KindNotImplemented, Detail: what}
}

// InvalidData creates a malformed-payload error
func InvalidData(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidData, detail, args...)
}

// OutOfBounds creates an engine-memory range error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return New(phase, KindOutOfBounds, "read of %d bytes at offset %d outside engine memory", length, offset)
}

// AllocationFailed creates an engine-memory allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return New(phase, KindAllocation, "failed to allocate %d bytes in engine memory", size)
}

// IsKind reports whether err is or wraps an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
