/*
Package planner implements the per-pool time-aware reservation
timeline (Planner) and its N-dimensional composition (MultiPlanner)
that the resource graph uses to answer "what quantity is free at
[t,t+d)?" and to enumerate schedulable start times.

# Architecture

Each graph.Pool owns one Planner over its own resource kind (e.g. a
core pool's Planner tracks concurrent core reservations) plus,
optionally, a MultiPlanner tracking pruning-type aggregates over its
subtree (e.g. a node pool's subplan tracks how many free cores and
GPUs remain anywhere beneath it, so the traverser can reject a
subrequest without descending).

A Planner is a flat set of (start, duration, qty, holder) reservation
spans plus a fixed capacity and a bounded time window
[base_time, base_time+total_duration). There is no interval tree in
the dependency pack this module draws on (no third-party segment/
interval-tree library appears anywhere in the retrieved corpus), so
the spans are held in a plain Go map keyed by holder (one span per
holder). Each availability query collects the relevant start times,
sorts them with sort.Slice, and scans every span at each of them, so
its cost grows linearly with the number of reservations; no ordered
index is kept between calls. This is the one place in the module built on the standard library
where a third-party dependency could in principle serve but none in
the pack does.
*/
package planner
