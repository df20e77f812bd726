// Package route describes which cluster member(s) a command targets
// and serializes that choice into the route message carried alongside
// a command call.
//
// The descriptor set is closed: AllNodes, AllPrimaries and Random
// (payload-free), SlotIDRoute, SlotKeyRoute and ByAddressRoute.
// Translation is pure and total over valid descriptors; anything
// malformed fails client-side with a request error so an invalid route
// can never reach the engine.
package route
