// Package errors provides the structured error types of the binding.
//
// Errors are categorized by Phase (where the error occurred) and Kind
// (error category). Connection kinds form a closed taxonomy mapped
// one-to-one from the engine's create-status codes; the remaining kinds
// cover client-side validation, closed connections, engine-reported
// command failures, and decode faults.
//
//	err := errors.Request(errors.PhaseRoute, "invalid slot type %d", st)
//	err := errors.Closing("client is closed")
//
// All errors implement the standard error interface and support
// errors.Is/As. A sentinel target with only a Kind set matches that
// kind in any phase:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindClosing})
package errors
