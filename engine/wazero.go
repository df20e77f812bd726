package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	strata "github.com/stratakv/strata-go"
)

// Export names of the engine core's wasm build
const (
	exportAlloc           = "strata_alloc"
	exportFree            = "strata_free"
	exportCreateClient    = "strata_create_client"
	exportCloseClient     = "strata_close_client"
	exportCommand         = "strata_command"
	exportCommandBlocking = "strata_command_blocking"
	exportPoll            = "strata_poll"
	exportFreeValue       = "strata_free_value"
	exportFreeString      = "strata_free_string"
)

// Byte layouts of the out-parameter records exchanged with the engine
const (
	createResultSize = 16 // status u32, errPtr u32, handle u64
	blockingOutSize  = 12 // ok u32, valuePtr u32, errPtr u32
	completionSize   = 24 // handle u64, token u64, type u32, payload u32
	argVectorStride  = 8  // ptr u32, len u32 per argument
)

// Completion record types. Pub/sub records carry no token; the token
// field holds the push kind instead.
const (
	completionFailure = 0
	completionSuccess = 1
	completionPubSub  = 2
)

// pollIdleWait is how long the completion pump sleeps when the engine
// reports no pending completion.
const pollIdleWait = 200 * time.Microsecond

// WasmEngine implements Engine over a WebAssembly build of the engine
// core hosted with wazero. The module is single-threaded, so every
// exported call is serialized behind one mutex; asynchronous command
// completion is the engine's own affair, surfaced through its poll
// export and delivered to callbacks from the pump goroutine, a thread
// the client layer does not control.
type WasmEngine struct {
	runtime wazero.Runtime
	module  api.Module
	mem     wasmMemory

	callMu          sync.Mutex
	alloc           api.Function
	free            api.Function
	createClient    api.Function
	closeClient     api.Function
	command         api.Function
	commandBlocking api.Function
	poll            api.Function
	freeValue       api.Function
	freeString      api.Function

	cbsMu sync.Mutex
	cbs   map[Handle]Callbacks

	pumpCancel context.CancelFunc
	pumpDone   sync.WaitGroup

	log *zap.Logger
}

// LoadWasm compiles and instantiates a wasm build of the engine core
// and starts its completion pump. The caller owns the returned engine
// and must Shutdown it when done.
func LoadWasm(ctx context.Context, wasmBytes []byte) (*WasmEngine, error) {
	runtime := wazero.NewRuntime(ctx)

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("compile engine module: %w", err)
	}

	module, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("strata-core"))
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate engine module: %w", err)
	}

	e := &WasmEngine{
		runtime: runtime,
		module:  module,
		mem:     wasmMemory{mem: module.Memory()},
		cbs:     make(map[Handle]Callbacks),
		log:     Logger().Named("wasm-engine"),
	}

	exports := map[string]*api.Function{
		exportAlloc:           &e.alloc,
		exportFree:            &e.free,
		exportCreateClient:    &e.createClient,
		exportCloseClient:     &e.closeClient,
		exportCommand:         &e.command,
		exportCommandBlocking: &e.commandBlocking,
		exportPoll:            &e.poll,
		exportFreeValue:       &e.freeValue,
		exportFreeString:      &e.freeString,
	}
	for name, fn := range exports {
		*fn = module.ExportedFunction(name)
		if *fn == nil {
			runtime.Close(ctx)
			return nil, fmt.Errorf("engine module does not export %q", name)
		}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	e.pumpCancel = cancel
	e.pumpDone.Add(1)
	go e.pump(pumpCtx)

	return e, nil
}

// Shutdown stops the completion pump and releases the wasm runtime.
// All connections must be closed first.
func (e *WasmEngine) Shutdown(ctx context.Context) error {
	e.pumpCancel()
	e.pumpDone.Wait()
	return e.runtime.Close(ctx)
}

func (e *WasmEngine) Memory() strata.Memory       { return e.mem }
func (e *WasmEngine) Allocator() strata.Allocator { return guestAllocator{e: e} }

func (e *WasmEngine) call(fn api.Function, args ...uint64) ([]uint64, error) {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	return fn.Call(context.Background(), args...)
}

// Create implements Engine
func (e *WasmEngine) Create(ctx context.Context, request []byte, cbs Callbacks) CreateResult {
	alloc := e.Allocator()

	reqPtr, err := alloc.Alloc(uint32(len(request)), 1)
	if err != nil {
		e.log.Error("allocate connection request", zap.Error(err))
		return CreateResult{Status: StatusUnknownError}
	}
	defer alloc.Free(reqPtr, uint32(len(request)), 1)

	outPtr, err := alloc.Alloc(createResultSize, 8)
	if err != nil {
		e.log.Error("allocate create result", zap.Error(err))
		return CreateResult{Status: StatusUnknownError}
	}
	defer alloc.Free(outPtr, createResultSize, 8)

	if err := e.mem.Write(reqPtr, request); err != nil {
		e.log.Error("write connection request", zap.Error(err))
		return CreateResult{Status: StatusUnknownError}
	}

	if _, err := e.call(e.createClient, uint64(reqPtr), uint64(len(request)), uint64(outPtr)); err != nil {
		e.log.Error("create_client trapped", zap.Error(err))
		return CreateResult{Status: StatusUnknownError}
	}

	raw, err := e.mem.Read(outPtr, createResultSize)
	if err != nil {
		return CreateResult{Status: StatusUnknownError}
	}
	result := CreateResult{
		Status: CreateStatus(binary.LittleEndian.Uint32(raw[0:])),
		ErrPtr: binary.LittleEndian.Uint32(raw[4:]),
		Handle: Handle(binary.LittleEndian.Uint64(raw[8:])),
	}

	if result.Status == StatusSuccess {
		e.cbsMu.Lock()
		e.cbs[result.Handle] = cbs
		e.cbsMu.Unlock()
	}
	return result
}

// CloseClient implements Engine
func (e *WasmEngine) CloseClient(h Handle) {
	e.cbsMu.Lock()
	delete(e.cbs, h)
	e.cbsMu.Unlock()

	if _, err := e.call(e.closeClient, uint64(h)); err != nil {
		e.log.Error("close_client trapped", zap.Error(err))
	}
}

// writeArgVector materializes the (ptr, len) argument vector in engine
// memory. Returns the vector address; 0 when args is empty.
func (e *WasmEngine) writeArgVector(args []Arg) (uint32, uint32, error) {
	if len(args) == 0 {
		return 0, 0, nil
	}
	size := uint32(len(args)) * argVectorStride
	vecPtr, err := e.Allocator().Alloc(size, 4)
	if err != nil {
		return 0, 0, err
	}
	raw := make([]byte, size)
	for i, a := range args {
		binary.LittleEndian.PutUint32(raw[i*argVectorStride:], a.Ptr)
		binary.LittleEndian.PutUint32(raw[i*argVectorStride+4:], a.Len)
	}
	if err := e.mem.Write(vecPtr, raw); err != nil {
		e.Allocator().Free(vecPtr, size, 4)
		return 0, 0, err
	}
	return vecPtr, size, nil
}

func (e *WasmEngine) writeRoute(routeMsg []byte) (uint32, error) {
	if len(routeMsg) == 0 {
		return 0, nil
	}
	ptr, err := e.Allocator().Alloc(uint32(len(routeMsg)), 1)
	if err != nil {
		return 0, err
	}
	if err := e.mem.Write(ptr, routeMsg); err != nil {
		e.Allocator().Free(ptr, uint32(len(routeMsg)), 1)
		return 0, err
	}
	return ptr, nil
}

// Command implements Engine. The engine copies the argument and route
// bytes before returning, so the vector and route buffers are freed on
// every exit path.
func (e *WasmEngine) Command(h Handle, token uint64, op Opcode, args []Arg, routeMsg []byte) error {
	vecPtr, vecSize, err := e.writeArgVector(args)
	if err != nil {
		return err
	}
	if vecPtr != 0 {
		defer e.Allocator().Free(vecPtr, vecSize, 4)
	}

	routePtr, err := e.writeRoute(routeMsg)
	if err != nil {
		return err
	}
	if routePtr != 0 {
		defer e.Allocator().Free(routePtr, uint32(len(routeMsg)), 1)
	}

	results, err := e.call(e.command,
		uint64(h), token, uint64(op),
		uint64(vecPtr), uint64(len(args)),
		uint64(routePtr), uint64(len(routeMsg)))
	if err != nil {
		return fmt.Errorf("command trapped: %w", err)
	}
	if len(results) > 0 && uint32(results[0]) != 0 {
		return fmt.Errorf("command rejected by engine: status %d", uint32(results[0]))
	}
	return nil
}

// CommandBlocking implements Engine
func (e *WasmEngine) CommandBlocking(ctx context.Context, h Handle, op Opcode, args []Arg, routeMsg []byte) (uint32, uint32, error) {
	vecPtr, vecSize, err := e.writeArgVector(args)
	if err != nil {
		return 0, 0, err
	}
	if vecPtr != 0 {
		defer e.Allocator().Free(vecPtr, vecSize, 4)
	}

	routePtr, err := e.writeRoute(routeMsg)
	if err != nil {
		return 0, 0, err
	}
	if routePtr != 0 {
		defer e.Allocator().Free(routePtr, uint32(len(routeMsg)), 1)
	}

	outPtr, err := e.Allocator().Alloc(blockingOutSize, 4)
	if err != nil {
		return 0, 0, err
	}
	defer e.Allocator().Free(outPtr, blockingOutSize, 4)

	if _, err := e.call(e.commandBlocking,
		uint64(h), uint64(op),
		uint64(vecPtr), uint64(len(args)),
		uint64(routePtr), uint64(len(routeMsg)),
		uint64(outPtr)); err != nil {
		return 0, 0, fmt.Errorf("command_blocking trapped: %w", err)
	}

	raw, err := e.mem.Read(outPtr, blockingOutSize)
	if err != nil {
		return 0, 0, err
	}
	ok := binary.LittleEndian.Uint32(raw[0:])
	valuePtr := binary.LittleEndian.Uint32(raw[4:])
	errPtr := binary.LittleEndian.Uint32(raw[8:])
	if ok == 0 {
		return 0, errPtr, nil
	}
	return valuePtr, 0, nil
}

// FreeValue implements Engine
func (e *WasmEngine) FreeValue(ptr uint32) {
	if _, err := e.call(e.freeValue, uint64(ptr)); err != nil {
		e.log.Error("free_value trapped", zap.Error(err))
	}
}

// FreeString implements Engine
func (e *WasmEngine) FreeString(ptr uint32) {
	if _, err := e.call(e.freeString, uint64(ptr)); err != nil {
		e.log.Error("free_string trapped", zap.Error(err))
	}
}

// pump drains engine completions and fans them out to the callbacks
// registered for each connection. Client code never sees this
// goroutine; from its perspective completions arrive from a foreign
// thread.
func (e *WasmEngine) pump(ctx context.Context) {
	defer e.pumpDone.Done()

	outPtr, err := e.Allocator().Alloc(completionSize, 8)
	if err != nil {
		e.log.Error("allocate completion record", zap.Error(err))
		return
	}
	defer e.Allocator().Free(outPtr, completionSize, 8)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results, err := e.call(e.poll, uint64(outPtr))
		if err != nil {
			e.log.Error("poll trapped", zap.Error(err))
			return
		}
		if len(results) == 0 || uint32(results[0]) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollIdleWait):
			}
			continue
		}

		raw, err := e.mem.Read(outPtr, completionSize)
		if err != nil {
			e.log.Error("read completion record", zap.Error(err))
			return
		}
		handle := Handle(binary.LittleEndian.Uint64(raw[0:]))
		token := binary.LittleEndian.Uint64(raw[8:])
		recordType := binary.LittleEndian.Uint32(raw[16:])
		payload := binary.LittleEndian.Uint32(raw[20:])

		e.cbsMu.Lock()
		cbs, found := e.cbs[handle]
		e.cbsMu.Unlock()
		if !found {
			// Connection already closed; release the orphaned payload.
			if recordType == completionFailure {
				e.FreeString(payload)
			} else {
				e.FreeValue(payload)
			}
			continue
		}

		switch recordType {
		case completionSuccess:
			cbs.Success(token, payload)
		case completionPubSub:
			if cbs.PubSub != nil {
				cbs.PubSub(PushKind(token), payload)
			} else {
				e.FreeValue(payload)
			}
		default:
			cbs.Failure(token, payload)
		}
	}
}

// guestAllocator adapts the engine's alloc/free exports
type guestAllocator struct {
	e *WasmEngine
}

func (g guestAllocator) Alloc(size, align uint32) (uint32, error) {
	results, err := g.e.call(g.e.alloc, uint64(size), uint64(align))
	if err != nil {
		return 0, fmt.Errorf("alloc trapped: %w", err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, fmt.Errorf("engine out of memory allocating %d bytes", size)
	}
	return uint32(results[0]), nil
}

func (g guestAllocator) Free(ptr, size, align uint32) {
	if _, err := g.e.call(g.e.free, uint64(ptr), uint64(size), uint64(align)); err != nil {
		g.e.log.Error("free trapped", zap.Error(err))
	}
}

// wasmMemory adapts wazero's api.Memory to strata.Memory
type wasmMemory struct {
	mem api.Memory
}

func (m wasmMemory) Read(offset, length uint32) ([]byte, error) {
	b, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read of %d bytes at offset %d outside engine memory", length, offset)
	}
	return b, nil
}

func (m wasmMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write of %d bytes at offset %d outside engine memory", len(data), offset)
	}
	return nil
}

func (m wasmMemory) ReadU8(offset uint32) (uint8, error) {
	b, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("read at offset %d outside engine memory", offset)
	}
	return b, nil
}

func (m wasmMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read at offset %d outside engine memory", offset)
	}
	return v, nil
}

func (m wasmMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read at offset %d outside engine memory", offset)
	}
	return v, nil
}

func (m wasmMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("write at offset %d outside engine memory", offset)
	}
	return nil
}

func (m wasmMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write at offset %d outside engine memory", offset)
	}
	return nil
}

func (m wasmMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write at offset %d outside engine memory", offset)
	}
	return nil
}
