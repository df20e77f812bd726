package engine

import (
	"context"

	strata "github.com/stratakv/strata-go"
)

// Handle identifies one live engine connection. It is created by
// Create and destroyed engine-side exactly once, by CloseClient.
type Handle uint64

// CreateStatus is the engine's create-connection status code
type CreateStatus uint32

const (
	StatusSuccess CreateStatus = iota
	StatusParameterError
	StatusThreadCreationError
	StatusConnectionTimeout
	StatusConnectionFailed
	StatusClusterConnectionFailed
	StatusConnectionIOError
	StatusUnknownError
)

var statusNames = [...]string{
	StatusSuccess:                 "success",
	StatusParameterError:          "parameter error",
	StatusThreadCreationError:     "thread creation error",
	StatusConnectionTimeout:       "connection timeout",
	StatusConnectionFailed:        "connection failed",
	StatusClusterConnectionFailed: "cluster connection failed",
	StatusConnectionIOError:       "connection io error",
	StatusUnknownError:            "unknown error",
}

func (s CreateStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown status"
}

// Arg is one encoded command argument: a pointer/length pair into
// engine memory. The provenance byte sits immediately before Ptr.
type Arg struct {
	Ptr uint32
	Len uint32
}

// PushKind classifies a pub/sub notification
type PushKind uint32

const (
	PushMessage PushKind = iota
	PushPMessage
	PushSMessage
	PushSubscribe
	PushUnsubscribe
	PushDisconnection
)

var pushKindNames = [...]string{
	PushMessage:       "message",
	PushPMessage:      "pmessage",
	PushSMessage:      "smessage",
	PushSubscribe:     "subscribe",
	PushUnsubscribe:   "unsubscribe",
	PushDisconnection: "disconnection",
}

func (k PushKind) String() string {
	if int(k) < len(pushKindNames) {
		return pushKindNames[k]
	}
	return "unknown"
}

// Callbacks deliver completions and server pushes. The engine invokes
// them from threads the binding does not control, in no particular
// order relative to dispatch order or to each other.
//
// Success and Failure carry the per-call token; Failure additionally
// carries a NUL-terminated message in engine memory that the receiver
// copies out and frees via FreeString.
//
// PubSub delivers a server push notification. It belongs to the
// connection, not to any token; the payload is a value tree in engine
// memory that the receiver frees via FreeValue. When PubSub is nil the
// engine releases notifications itself.
type Callbacks struct {
	Success func(token uint64, valuePtr uint32)
	Failure func(token uint64, errPtr uint32)
	PubSub  func(kind PushKind, payloadPtr uint32)
}

// CreateResult is the outcome of Create. ErrPtr, when non-zero, points
// at a NUL-terminated message the receiver frees via FreeString.
type CreateResult struct {
	Status CreateStatus
	Handle Handle
	ErrPtr uint32
}

// Engine is the call surface of the store engine. All pointers are
// offsets into the engine's Memory; all buffers passed to Command are
// copied by the engine before the call returns, so the caller may
// release them immediately afterwards.
type Engine interface {
	Memory() strata.Memory
	Allocator() strata.Allocator

	// Create opens a connection described by a serialized connection
	// request and registers the completion and pub/sub callbacks for
	// its lifetime.
	Create(ctx context.Context, request []byte, cbs Callbacks) CreateResult

	// CloseClient destroys the connection. Completions already in
	// flight may still be delivered afterwards.
	CloseClient(h Handle)

	// Command submits one command. Completion arrives through the
	// connection's callbacks carrying the same token. A non-nil error
	// means the submission itself failed and no callback will fire.
	Command(h Handle, token uint64, op Opcode, args []Arg, routeMsg []byte) error

	// CommandBlocking executes one command inline, returning either a
	// value pointer or an error-string pointer (freed by the caller
	// via FreeValue / FreeString respectively).
	CommandBlocking(ctx context.Context, h Handle, op Opcode, args []Arg, routeMsg []byte) (valuePtr, errPtr uint32, err error)

	// FreeValue releases a value tree received from the engine.
	// Must be called exactly once per delivered value.
	FreeValue(ptr uint32)

	// FreeString releases a NUL-terminated string received from the
	// engine. Must be called exactly once per delivered string.
	FreeString(ptr uint32)
}
