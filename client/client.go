package client

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratakv/strata-go/config"
	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/wire"
)

// Client is one connection to the store engine. It owns the handle the
// engine issued at create time, the registry of in-flight operations
// and the completion callbacks the engine invokes from its own threads.
//
// A Client is safe for concurrent use. Close may race freely with
// dispatches and with completion delivery.
type Client struct {
	id      string
	eng     engine.Engine
	handle  engine.Handle
	pending *pending
	log     *zap.Logger
}

// statusKinds maps the engine's create-status taxonomy onto error kinds
// one-to-one.
var statusKinds = map[engine.CreateStatus]errors.Kind{
	engine.StatusParameterError:          errors.KindParameter,
	engine.StatusThreadCreationError:     errors.KindThreadCreation,
	engine.StatusConnectionTimeout:       errors.KindConnectionTimeout,
	engine.StatusConnectionFailed:        errors.KindConnectionFailed,
	engine.StatusClusterConnectionFailed: errors.KindClusterConnection,
	engine.StatusConnectionIOError:       errors.KindConnectionIO,
	engine.StatusUnknownError:            errors.KindUnknown,
}

// Open validates and serializes the configuration, then creates an
// engine connection with this client's completion callbacks installed.
// Validation failures surface before any engine call is made.
func Open(ctx context.Context, cfg config.Config, eng engine.Engine) (*Client, error) {
	request, err := cfg.MarshalRequest()
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:      uuid.NewString(),
		eng:     eng,
		pending: newPending(),
	}
	c.log = engine.Logger().Named("client").With(zap.String("client_id", c.id))

	res := eng.Create(ctx, request, engine.Callbacks{
		Success: c.onSuccess,
		Failure: c.onFailure,
		PubSub:  c.onPubSub,
	})
	if res.Status != engine.StatusSuccess {
		msg := c.takeString(res.ErrPtr)
		if msg == "" {
			msg = res.Status.String()
		}
		kind, ok := statusKinds[res.Status]
		if !ok {
			kind = errors.KindUnknown
		}
		err := errors.New(errors.PhaseConnect, kind, msg)
		c.log.Warn("connection open failed",
			zap.String("status", res.Status.String()),
			zap.Error(err))
		return nil, err
	}

	c.handle = res.Handle
	c.log.Debug("connection open", zap.Uint64("handle", uint64(res.Handle)))
	return c, nil
}

// ID returns the client's unique identifier, used for log correlation
func (c *Client) ID() string {
	return c.id
}

// Close destroys the engine connection and resolves every in-flight
// operation with a closing error. The registry transition, the engine
// close and the sweep happen under one lock, so no completion callback
// can interleave with the sweep. Safe to call more than once; only the
// first call reaches the engine.
func (c *Client) Close() {
	if !c.pending.closeAll(func() { c.eng.CloseClient(c.handle) }) {
		return
	}
	c.log.Debug("connection closed")
}

// onSuccess is invoked by the engine, possibly from a foreign thread.
// If the token is already gone (swept by Close, or abandoned by
// cancellation) ownership of the value never transferred, so it is
// released here.
func (c *Client) onSuccess(token uint64, valuePtr uint32) {
	if !c.pending.resolve(token, outcome{valuePtr: valuePtr}) {
		c.eng.FreeValue(valuePtr)
	}
}

// onFailure copies the engine's message out and frees it before
// resolving, so the string's lifetime never depends on the waiter.
func (c *Client) onFailure(token uint64, errPtr uint32) {
	msg := c.takeString(errPtr)
	c.pending.resolve(token, outcome{err: errors.Command(msg)})
}

// onPubSub receives server push notifications. Subscriptions are not
// part of the binding surface, so the payload is released and the
// notification dropped; it is never confused with a pending operation,
// which only callbacks carrying a token can resolve.
func (c *Client) onPubSub(kind engine.PushKind, payloadPtr uint32) {
	c.eng.FreeValue(payloadPtr)
	c.log.Debug("pub/sub notification dropped", zap.Stringer("kind", kind))
}

// takeString copies a NUL-terminated engine string and frees it. A zero
// pointer yields the empty string.
func (c *Client) takeString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	msg, err := wire.ReadCString(c.eng.Memory(), ptr)
	c.eng.FreeString(ptr)
	if err != nil {
		c.log.Warn("engine string unreadable", zap.Uint32("ptr", ptr), zap.Error(err))
		return ""
	}
	return msg
}

// decode walks a delivered value tree into host values and releases the
// tree exactly once, whether or not the walk succeeded.
func (c *Client) decode(valuePtr uint32) (any, error) {
	if valuePtr == 0 {
		return nil, nil
	}
	defer c.eng.FreeValue(valuePtr)
	return wire.NewDecoder(c.eng.Memory()).Decode(valuePtr)
}
