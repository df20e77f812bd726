package client

import (
	"context"

	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/route"
	"github.com/stratakv/strata-go/transcoder"
)

// Dispatch submits one command and waits for its completion. The route
// is optional; nil means the engine picks per its defaults.
//
// Argument buffers live only for the duration of the submit call: the
// engine copies them before Command returns, and the buffers are
// released on every path out of the submission, including failures
// partway through encoding.
func (c *Client) Dispatch(ctx context.Context, op engine.Opcode, args []string, rt route.Route) (any, error) {
	if c.pending.isClosed() {
		return nil, errors.Closing("client is closed")
	}

	token, ch, err := c.submit(op, args, rt)
	if err != nil {
		return nil, err
	}

	var oc outcome
	select {
	case oc = <-ch:
	case <-ctx.Done():
		if c.pending.drop(token) {
			// The late completion for this token resolves against an
			// absent entry, which releases any value it carried.
			return nil, errors.Wrap(errors.PhaseDispatch, errors.KindCanceled, ctx.Err(), "dispatch canceled")
		}
		// Lost the race: the outcome is already buffered.
		oc = <-ch
	}

	if oc.err != nil {
		return nil, oc.err
	}
	return c.decode(oc.valuePtr)
}

// DispatchBlocking executes one command on the engine's blocking entry
// point, bypassing the pending registry entirely.
func (c *Client) DispatchBlocking(ctx context.Context, op engine.Opcode, args []string, rt route.Route) (any, error) {
	if c.pending.isClosed() {
		return nil, errors.Closing("client is closed")
	}

	vector, buffers, routeMsg, err := c.encodeCall(args, rt)
	if err != nil {
		return nil, err
	}

	valuePtr, errPtr, err := c.eng.CommandBlocking(ctx, c.handle, op, vector, routeMsg)
	buffers.FreeAndRelease(c.eng.Allocator())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindUnknown, err, "blocking command")
	}
	if errPtr != 0 {
		return nil, errors.Command(c.takeString(errPtr))
	}
	return c.decode(valuePtr)
}

// submit encodes the call, registers a token and hands the command to
// the engine. On success the argument buffers have already been
// released; on failure nothing remains registered or allocated.
func (c *Client) submit(op engine.Opcode, args []string, rt route.Route) (uint64, chan outcome, error) {
	vector, buffers, routeMsg, err := c.encodeCall(args, rt)
	if err != nil {
		return 0, nil, err
	}

	token, ch, err := c.pending.register()
	if err != nil {
		buffers.FreeAndRelease(c.eng.Allocator())
		return 0, nil, err
	}

	err = c.eng.Command(c.handle, token, op, vector, routeMsg)
	buffers.FreeAndRelease(c.eng.Allocator())
	if err != nil {
		c.pending.drop(token)
		return 0, nil, errors.Wrap(errors.PhaseDispatch, errors.KindUnknown, err, "submit command")
	}
	return token, ch, nil
}

// encodeCall materializes the argument vector in engine memory and
// serializes the route, if any.
func (c *Client) encodeCall(args []string, rt route.Route) ([]engine.Arg, *transcoder.Buffers, []byte, error) {
	vector, buffers, err := transcoder.EncodeArgs(c.eng.Memory(), c.eng.Allocator(), args)
	if err != nil {
		return nil, nil, nil, err
	}

	var routeMsg []byte
	if rt != nil {
		routeMsg, err = route.Translate(rt)
		if err != nil {
			buffers.FreeAndRelease(c.eng.Allocator())
			return nil, nil, nil, err
		}
	}
	return vector, buffers, routeMsg, nil
}
