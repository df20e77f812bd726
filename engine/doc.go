// Package engine defines the call surface of the store engine and its
// production implementation.
//
// Engine is the foreign boundary: create/close a connection, submit
// commands with a per-call token, receive completions on threads the
// binding does not control, and free every value or string the engine
// hands back. WasmEngine implements the surface over a WebAssembly
// build of the engine core hosted with wazero; tests use the fake in
// package enginetest instead.
package engine
