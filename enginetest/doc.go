// Package enginetest provides an in-process fake of the store engine
// for tests: an Arena standing in for engine memory (with allocator
// misuse detection) and an Engine implementing the full call surface
// over a toy per-connection key/value store.
//
// Completions are delivered from the fake's own goroutines, so tests
// exercise the same foreign-thread callback model the production
// engine has. Fault injection covers create-status codes, forced
// command failures and delayed completions.
package enginetest
