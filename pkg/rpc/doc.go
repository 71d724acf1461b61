/*
Package rpc types the JSON wire payloads spec section 6 documents for
every topic the core handles, plus the Dispatcher and
ResourceAcquireStream interfaces the engine is driven through.

No transport is implemented here — spec section 1 frames the RPC
server that dispatches requests to the core as an external
collaborator, and the pack carried no .proto sources for this pack to
ground a generated stub on. What's in scope is the shape of every
request/response pair and the seams (Dispatcher, ResourceAcquireStream)
a real transport plugs into; encoding/json is enough to marshal them.
*/
package rpc
