package client

import (
	"context"

	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/errors"
	"github.com/stratakv/strata-go/route"
	"github.com/stratakv/strata-go/wire"
)

// Typed wrappers over Dispatch for the common commands. Anything not
// covered here goes through CustomCommand.

// Ping checks the connection, returning the server's response line
func (c *Client) Ping(ctx context.Context) (string, error) {
	v, err := c.Dispatch(ctx, engine.OpPing, nil, nil)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.InvalidData(errors.PhaseDispatch, "unexpected PING reply type %T", v)
	}
	return s, nil
}

// Get returns the value of key. The second return is false when the
// key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.Dispatch(ctx, engine.OpGet, []string{key}, nil)
	if err != nil {
		return "", false, err
	}
	switch v := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	}
	return "", false, errors.InvalidData(errors.PhaseDispatch, "unexpected GET reply type %T", v)
}

// Set stores value under key
func (c *Client) Set(ctx context.Context, key, value string) error {
	v, err := c.Dispatch(ctx, engine.OpSet, []string{key, value}, nil)
	if err != nil {
		return err
	}
	if _, ok := v.(wire.OKValue); !ok {
		return errors.InvalidData(errors.PhaseDispatch, "unexpected SET reply type %T", v)
	}
	return nil
}

// Del removes the given keys and returns how many existed
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.dispatchInt(ctx, engine.OpDel, keys)
}

// Exists returns how many of the given keys exist
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.dispatchInt(ctx, engine.OpExists, keys)
}

// FlushAll removes every key
func (c *Client) FlushAll(ctx context.Context) error {
	v, err := c.Dispatch(ctx, engine.OpFlushAll, nil, nil)
	if err != nil {
		return err
	}
	if _, ok := v.(wire.OKValue); !ok {
		return errors.InvalidData(errors.PhaseDispatch, "unexpected FLUSHALL reply type %T", v)
	}
	return nil
}

// CustomCommand dispatches a command by name, args[0] being the command
// itself. The reply is returned undecoded beyond the wire mapping.
func (c *Client) CustomCommand(ctx context.Context, args ...string) (any, error) {
	if len(args) == 0 {
		return nil, errors.Request(errors.PhaseDispatch, "custom command requires at least the command name")
	}
	return c.Dispatch(ctx, engine.OpCustom, args, nil)
}

// CustomCommandRoute is CustomCommand with an explicit route
func (c *Client) CustomCommandRoute(ctx context.Context, rt route.Route, args ...string) (any, error) {
	if len(args) == 0 {
		return nil, errors.Request(errors.PhaseDispatch, "custom command requires at least the command name")
	}
	return c.Dispatch(ctx, engine.OpCustom, args, rt)
}

func (c *Client) dispatchInt(ctx context.Context, op engine.Opcode, args []string) (int64, error) {
	v, err := c.Dispatch(ctx, op, args, nil)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.InvalidData(errors.PhaseDispatch, "unexpected %s reply type %T", op, v)
	}
	return n, nil
}
