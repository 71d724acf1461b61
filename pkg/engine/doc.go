/*
Package engine composes the Graph, MatchState, Traverser, and
Perf/Stats into the single reactor the core's external interfaces are
driven through (spec section 5: one reactor loop per service
instance, all traversal on the same thread, the graph mutated without
locks).

Engine's exported methods assume single-threaded-caller discipline:
whatever drives them (cmd/fluxion-resourced's dispatch loop, or a test
calling directly) must never invoke two of them concurrently. Dispatch
implements rpc.Dispatcher over those same methods, decoding each
topic's JSON payload and routing it to the matching operation.
*/
package engine
