// Package strata is the Go binding for the Strata key/value engine.
//
// The engine runs behind a foreign call boundary: production builds
// host the engine core as a WebAssembly module, and all data crossing
// the boundary lives in engine-owned memory addressed by 32-bit
// offsets. This root package holds the two interfaces that model that
// memory; everything else is layered on top of them:
//
//	strata/          Root package with Memory and Allocator interfaces
//	├── client/      Connection lifecycle, pending-call registry, dispatch
//	├── config/      Client configuration and connection-request encoding
//	├── engine/      The engine call surface and its wazero-hosted implementation
//	├── enginetest/  In-process fake engine for tests
//	├── errors/      Structured error taxonomy
//	├── route/       Cluster route descriptors and their serialized form
//	├── transcoder/  Command-argument encoding into engine memory
//	└── wire/        Tagged-union result values and their decoder
//
// # Quick start
//
//	eng, err := engine.LoadWasm(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := client.Open(ctx, config.Default("localhost", 6379), eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Set(ctx, "k", "v"); err != nil {
//	    log.Fatal(err)
//	}
//	v, found, err := c.Get(ctx, "k") // "v", true
//
// # Thread safety
//
// A Client is safe for concurrent use. Dispatches from many goroutines
// interleave freely; Close may race with in-flight dispatches, and each
// of them resolves exactly once, either with its result or with a
// closing error.
//
// # Memory model
//
// The engine owns every byte the binding reads or writes across the
// boundary. Argument buffers are allocated per dispatch and released
// when the engine call returns; result values are freed exactly once
// after decoding. Nothing received from the engine is retained past
// one decode pass.
package strata
