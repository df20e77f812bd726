// Package client is the connection layer of the binding: it opens and
// closes engine connections, correlates dispatches with completions
// through per-call tokens and turns delivered value trees into host
// values.
//
// The core guarantee is exactly-once resolution. Every in-flight call
// is resolved by exactly one of {success callback, failure callback,
// Close sweep, caller cancellation}, no matter how these race; values
// whose waiter is already gone are released instead of leaked.
package client
