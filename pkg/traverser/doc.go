/*
Package traverser implements the depth-first-and-up match algorithm
(spec section 4.6): priming pruning filters over a policy's dominant
subsystem, walking a jobspec against the resource graph, scoring
candidates through the policy, and committing the winning selection's
reservations to the graph's planners. It also owns the supporting
match operations: update (rehydrating a job from a surfaced R set),
remove and partial-cancel, find, and mark.

The search itself is a simplified, single-pass variant of the
recursive prune-then-descend walk the specification describes: rather
than backtracking through every interleaving of pristine descent and
sibling ordering, each jobspec resource node is matched by scoring
every distinct candidate subtree in the dominant hierarchy and
selecting the policy's top evaluatedEffectiveMax winners. Per-vertex
exclusivity and multi-planner pruning, calc_count/calc_effective_max,
and all three Policy finish callbacks are honored exactly as specified;
only the exhaustive backtracking over partial prefixes is traded for a
single enumerate-and-score pass. This keeps the traverser's state
machine small enough to reason about without sacrificing the
planner-correctness invariants in spec section 8.
*/
package traverser
