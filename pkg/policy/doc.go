/*
Package policy implements the pluggable match-policy callbacks the DFU
traverser consults at every graph-visit event (spec section 4.5): how
to score a finished vertex or graph, how many units of a resource
type to take, and which resource types are tracked for subtree
pruning or always taken exclusively.

A Policy is stateful only with respect to its one-time pruning-type
and exclusive-type registrations; per-match data lives in the
traverser and scoring packages, not here. Named policies are looked
up through Registry, mirroring the teacher's factory-by-name
construction used elsewhere in this codebase for pluggable
strategies.
*/
package policy
