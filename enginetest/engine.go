package enginetest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	strata "github.com/stratakv/strata-go"
	"github.com/stratakv/strata-go/engine"
	"github.com/stratakv/strata-go/wire"
)

// Command is one submission recorded by the fake engine, decoded from
// engine memory at submit time, before the caller releases its
// argument buffers, exactly like the real engine.
type Command struct {
	Op         engine.Opcode
	Args       []string
	Provenance []byte
	Route      []byte
}

// Engine is an in-process fake of the store engine. It implements the
// full call surface over an Arena, runs a toy key/value store per
// connection, and delivers completions from its own goroutines so the
// client layer sees the same foreign-thread callback model as in
// production. Fault injection covers create-status codes and per-command
// failures.
type Engine struct {
	arena *Arena

	mu          sync.Mutex
	nextHandle  uint64
	clients     map[engine.Handle]*fakeClient
	values      map[uint32]*wire.Allocations
	cstrings    map[uint32]uint32
	commands    []Command
	misuse      []string
	createCalls int
	closeCalls  int

	inflight sync.WaitGroup

	// CreateStatus, when not StatusSuccess, makes Create fail with this
	// status and CreateMessage.
	CreateStatus  engine.CreateStatus
	CreateMessage string

	// CompletionDelay delays every asynchronous completion.
	CompletionDelay time.Duration

	// FailCommand, when set, is consulted before executing a command;
	// returning (message, true) forces a failure completion.
	FailCommand func(op engine.Opcode, args []string) (string, bool)
}

type fakeClient struct {
	cbs engine.Callbacks

	mu     sync.Mutex
	store  map[string]string
	closed bool
}

func New() *Engine {
	return &Engine{
		arena:    NewArena(),
		clients:  make(map[engine.Handle]*fakeClient),
		values:   make(map[uint32]*wire.Allocations),
		cstrings: make(map[uint32]uint32),
	}
}

func (e *Engine) Memory() strata.Memory       { return e.arena }
func (e *Engine) Allocator() strata.Allocator { return e.arena }

// Arena exposes the backing memory for allocation assertions
func (e *Engine) Arena() *Arena { return e.arena }

// WaitIdle blocks until every in-flight completion has been delivered
func (e *Engine) WaitIdle() { e.inflight.Wait() }

// Commands returns every submission recorded so far
func (e *Engine) Commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.commands...)
}

// LastRoute returns the route bytes of the most recent submission, or
// nil if none carried a route.
func (e *Engine) LastRoute() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.commands) == 0 {
		return nil
	}
	return append([]byte(nil), e.commands[len(e.commands)-1].Route...)
}

// Misuse returns every boundary-contract violation observed: allocator
// misuse plus double or unknown frees of values and strings.
func (e *Engine) Misuse() []string {
	e.mu.Lock()
	out := append([]string(nil), e.misuse...)
	e.mu.Unlock()
	return append(out, e.arena.Misuse()...)
}

// LiveValues returns the number of values delivered but not yet freed
func (e *Engine) LiveValues() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values)
}

// LiveStrings returns the number of error strings not yet freed
func (e *Engine) LiveStrings() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cstrings)
}

// CreateCalls returns how many times Create was invoked
func (e *Engine) CreateCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createCalls
}

// CloseCalls returns how many times CloseClient was invoked
func (e *Engine) CloseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCalls
}

func (e *Engine) newCString(s string) uint32 {
	ptr, size, err := wire.WriteCString(e.arena, e.arena, s)
	if err != nil {
		return 0
	}
	e.mu.Lock()
	e.cstrings[ptr] = size
	e.mu.Unlock()
	return ptr
}

func (e *Engine) newValue(t wire.Tree) (uint32, error) {
	addr, allocs, err := wire.NewBuilder(e.arena, e.arena).Build(t)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.values[addr] = allocs
	e.mu.Unlock()
	return addr, nil
}

// Create implements engine.Engine
func (e *Engine) Create(ctx context.Context, request []byte, cbs engine.Callbacks) engine.CreateResult {
	e.mu.Lock()
	e.createCalls++
	e.mu.Unlock()

	if e.CreateStatus != engine.StatusSuccess {
		msg := e.CreateMessage
		if msg == "" {
			msg = e.CreateStatus.String()
		}
		return engine.CreateResult{Status: e.CreateStatus, ErrPtr: e.newCString(msg)}
	}
	if len(request) == 0 {
		return engine.CreateResult{Status: engine.StatusParameterError, ErrPtr: e.newCString("empty connection request")}
	}

	e.mu.Lock()
	e.nextHandle++
	h := engine.Handle(e.nextHandle)
	e.clients[h] = &fakeClient{cbs: cbs, store: make(map[string]string)}
	e.mu.Unlock()

	return engine.CreateResult{Status: engine.StatusSuccess, Handle: h}
}

// CloseClient implements engine.Engine
func (e *Engine) CloseClient(h engine.Handle) {
	e.mu.Lock()
	e.closeCalls++
	cl := e.clients[h]
	e.mu.Unlock()
	if cl == nil {
		return
	}
	cl.mu.Lock()
	cl.closed = true
	cl.mu.Unlock()
}

// record reads the argument payloads, their provenance bytes and the
// route out of engine memory. This is the decode half of the argument
// ABI: it must happen before the submit call returns, because the
// caller releases its buffers immediately afterwards.
func (e *Engine) record(op engine.Opcode, args []engine.Arg, routeMsg []byte) (Command, error) {
	cmd := Command{Op: op}
	for _, a := range args {
		prov, err := e.arena.ReadU8(a.Ptr - 1)
		if err != nil {
			return Command{}, fmt.Errorf("argument provenance byte unreadable: %w", err)
		}
		if prov != 0 && prov != 1 {
			return Command{}, fmt.Errorf("argument provenance byte invalid: %d", prov)
		}
		payload, err := e.arena.Read(a.Ptr, a.Len)
		if err != nil {
			return Command{}, fmt.Errorf("argument payload unreadable: %w", err)
		}
		cmd.Provenance = append(cmd.Provenance, prov)
		cmd.Args = append(cmd.Args, string(payload))
	}
	cmd.Route = append([]byte(nil), routeMsg...)

	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	e.mu.Unlock()
	return cmd, nil
}

// Command implements engine.Engine
func (e *Engine) Command(h engine.Handle, token uint64, op engine.Opcode, args []engine.Arg, routeMsg []byte) error {
	cmd, err := e.record(op, args, routeMsg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	cl := e.clients[h]
	e.mu.Unlock()
	if cl == nil {
		return fmt.Errorf("unknown client handle %d", h)
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if e.CompletionDelay > 0 {
			time.Sleep(e.CompletionDelay)
		}
		e.complete(cl, token, cmd)
	}()
	return nil
}

func (e *Engine) complete(cl *fakeClient, token uint64, cmd Command) {
	tree, errMsg := e.execute(cl, cmd.Op, cmd.Args)
	if errMsg != "" {
		cl.cbs.Failure(token, e.newCString(errMsg))
		return
	}
	addr, err := e.newValue(tree)
	if err != nil {
		cl.cbs.Failure(token, e.newCString("out of memory materializing result"))
		return
	}
	cl.cbs.Success(token, addr)
}

// Publish delivers a pub/sub notification to every open connection's
// push callback from the fake's own goroutines, independent of any
// pending command.
func (e *Engine) Publish(kind engine.PushKind, channel, message string) {
	e.mu.Lock()
	clients := make([]*fakeClient, 0, len(e.clients))
	for _, cl := range e.clients {
		clients = append(clients, cl)
	}
	e.mu.Unlock()

	for _, cl := range clients {
		cl.mu.Lock()
		closed := cl.closed
		cl.mu.Unlock()
		if closed {
			continue
		}

		e.inflight.Add(1)
		go func(cl *fakeClient) {
			defer e.inflight.Done()
			tree := wire.Tree{Kind: wire.KindPush, Elems: []wire.Tree{
				wire.Bulk(channel),
				wire.Bulk(message),
			}}
			addr, err := e.newValue(tree)
			if err != nil {
				return
			}
			if cl.cbs.PubSub != nil {
				cl.cbs.PubSub(kind, addr)
			} else {
				e.FreeValue(addr)
			}
		}(cl)
	}
}

// CommandBlocking implements engine.Engine
func (e *Engine) CommandBlocking(ctx context.Context, h engine.Handle, op engine.Opcode, args []engine.Arg, routeMsg []byte) (uint32, uint32, error) {
	cmd, err := e.record(op, args, routeMsg)
	if err != nil {
		return 0, 0, err
	}

	e.mu.Lock()
	cl := e.clients[h]
	e.mu.Unlock()
	if cl == nil {
		return 0, 0, fmt.Errorf("unknown client handle %d", h)
	}

	tree, errMsg := e.execute(cl, cmd.Op, cmd.Args)
	if errMsg != "" {
		return 0, e.newCString(errMsg), nil
	}
	addr, err := e.newValue(tree)
	if err != nil {
		return 0, e.newCString("out of memory materializing result"), nil
	}
	return addr, 0, nil
}

// FreeValue implements engine.Engine
func (e *Engine) FreeValue(ptr uint32) {
	e.mu.Lock()
	allocs, ok := e.values[ptr]
	if !ok {
		e.misuse = append(e.misuse, fmt.Sprintf("free_value of unknown or already-freed pointer %d", ptr))
		e.mu.Unlock()
		return
	}
	delete(e.values, ptr)
	e.mu.Unlock()
	allocs.Free(e.arena)
}

// FreeString implements engine.Engine
func (e *Engine) FreeString(ptr uint32) {
	e.mu.Lock()
	size, ok := e.cstrings[ptr]
	if !ok {
		e.misuse = append(e.misuse, fmt.Sprintf("free_string of unknown or already-freed pointer %d", ptr))
		e.mu.Unlock()
		return
	}
	delete(e.cstrings, ptr)
	e.mu.Unlock()
	e.arena.Free(ptr, size, 1)
}

var customOpcodes = map[string]engine.Opcode{
	"PING":     engine.OpPing,
	"GET":      engine.OpGet,
	"SET":      engine.OpSet,
	"DEL":      engine.OpDel,
	"EXISTS":   engine.OpExists,
	"FLUSHALL": engine.OpFlushAll,
}

func (e *Engine) execute(cl *fakeClient, op engine.Opcode, args []string) (wire.Tree, string) {
	if e.FailCommand != nil {
		if msg, fail := e.FailCommand(op, args); fail {
			return wire.Tree{}, msg
		}
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return wire.Tree{}, "client is closed"
	}

	switch op {
	case engine.OpCustom:
		if len(args) == 0 {
			return wire.Tree{}, "empty custom command"
		}
		named, ok := customOpcodes[strings.ToUpper(args[0])]
		if !ok {
			return wire.Tree{}, fmt.Sprintf("unknown command '%s'", args[0])
		}
		return e.executeLocked(cl, named, args[1:])
	default:
		return e.executeLocked(cl, op, args)
	}
}

func (e *Engine) executeLocked(cl *fakeClient, op engine.Opcode, args []string) (wire.Tree, string) {
	switch op {
	case engine.OpPing:
		if len(args) > 0 {
			return wire.Bulk(args[0]), ""
		}
		return wire.Simple("PONG"), ""

	case engine.OpGet:
		if len(args) != 1 {
			return wire.Tree{}, "wrong number of arguments for 'get' command"
		}
		if v, ok := cl.store[args[0]]; ok {
			return wire.Bulk(v), ""
		}
		return wire.Nil(), ""

	case engine.OpSet:
		if len(args) != 2 {
			return wire.Tree{}, "wrong number of arguments for 'set' command"
		}
		cl.store[args[0]] = args[1]
		return wire.Ok(), ""

	case engine.OpDel:
		if len(args) == 0 {
			return wire.Tree{}, "wrong number of arguments for 'del' command"
		}
		var removed int64
		for _, key := range args {
			if _, ok := cl.store[key]; ok {
				delete(cl.store, key)
				removed++
			}
		}
		return wire.Int(removed), ""

	case engine.OpExists:
		var found int64
		for _, key := range args {
			if _, ok := cl.store[key]; ok {
				found++
			}
		}
		return wire.Int(found), ""

	case engine.OpFlushAll:
		cl.store = make(map[string]string)
		return wire.Ok(), ""

	default:
		return wire.Tree{}, "unknown opcode " + strconv.Itoa(int(op))
	}
}
