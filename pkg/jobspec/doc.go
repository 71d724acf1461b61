/*
Package jobspec defines the tree-shaped resource request the DFU
traverser matches against the resource graph: each node names a
resource type, a count (with min/max and an aggregation operator),
child requests ("with"), an exclusivity preference, and an optional
slot construct that multiplies a child shape by a repeat count.

Jobspec is parsed from the JSON body of a …resource.match request
(spec section 6); this package owns only the in-memory tree and its
validation, not wire framing (see pkg/rpc).
*/
package jobspec
