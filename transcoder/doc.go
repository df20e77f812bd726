// Package transcoder encodes command arguments into engine memory.
//
// Every encoded argument is an ephemeral engine-memory buffer carrying
// a one-byte provenance marker ahead of its payload: inline-block slot
// or heap allocation. The marker is the engine's contract for deciding
// whether a buffer needs an individual release; the binding's own
// release path is the pooled Buffers set, which frees every region
// exactly once on every exit of a dispatch, including partial encoding
// failures.
package transcoder
