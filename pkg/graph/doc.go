/*
Package graph implements the typed, multi-subsystem resource graph:
a directed acyclic arena of resource pools (vertices) connected by
subsystem-labelled edges, with the per-subsystem path, type, name,
and rank indices the traverser and match state query against.

# Architecture

A Graph is a set of named subsystems (e.g. "containment", "power"),
each with exactly one root vertex. A Pool is a vertex: it carries its
own Planner (a single-resource reservation timeline sized to its
Size, invariant 3 in the spec) plus, once traverser.Initialize has run,
a Subplan (planner.MultiPlanner) tracking subtree aggregates of the
active Policy's pruning types; Initialize installs one at every vertex
reachable from the dominant subsystem's root.

Edges are stored as a parallel arena of integer-handle pairs, each
tagged with the subsystem and relation it belongs to ("contains" on
the forward edge, "in" on its mandatory reverse) — never as pointer
aliasing, so the graph can be walked in either direction without the
owning/owned distinction C++ shared_ptr graphs need.

The only sanctioned way to grow a Graph after construction is Load,
which hands a batch of external text to a registered GraphReader. No
concrete reader (hwloc, JGF, rv1exec) lives in this package: spec
scope treats "the resource-graph loaders for external file formats"
as an external collaborator and specifies only the reader interface.
*/
package graph
