// Package wire defines the tagged-union value format the engine
// returns results in, and decodes it into Go values.
//
// A value is a tree of fixed-size nodes in engine memory. Each node
// carries a kind discriminant and a kind-specific payload: a scalar, a
// pointer+length byte range, or a pointer to a contiguous run of child
// nodes. Decoder walks one tree per decode pass without retaining any
// engine memory; the caller then frees the top-level value exactly
// once through the engine's free-value entry point.
//
// Builder is the inverse direction. The binding itself never encodes
// values; Builder exists for engine implementations and test harnesses
// that must materialize results for the decoder to consume.
package wire
