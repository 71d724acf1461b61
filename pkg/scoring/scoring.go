/*
Package scoring implements the per-subtree scratchpad the DFU
traverser accumulates into while walking one vertex's children: the
evaluated edge-groups, their scores, and the qualified-quantity
rollup a parent vertex's own Policy.DomFinishVtx call reads back.

A fresh API is created per vertex visit and is cheap: it is a
small map keyed by (subsystem, type), never shared across vertices or
retained past one traversal.
*/
package scoring

import "github.com/cuemby/fluxion/pkg/graph"

// MatchMet is the distinguished "no contribution" baseline score.
// Higher integral scores are better; a Policy callback returns
// MatchMet when a candidate passes but contributes no ranking
// preference over another at the same score.
const MatchMet int64 = 0

// EdgeRef is one chosen child edge and the quantity taken across it.
type EdgeRef struct {
	To  graph.Handle
	Qty int64
}

// EGroup is one evaluated edge-group: a set of chosen child edges
// selected together (e.g. "2 cores under this socket"), the
// aggregate quantity they satisfy, the score the policy assigned,
// and whether the group was taken under an exclusivity constraint.
type EGroup struct {
	Edges     []EdgeRef
	Score     int64
	Count     int64
	Exclusive bool
}

type key struct {
	Subsystem string
	Type      string
}

// API is the per-subtree scoring scratchpad.
type API struct {
	groups map[key][]*EGroup
	order  []key
}

// New creates an empty scoring scratchpad.
func New() *API {
	return &API{groups: make(map[key][]*EGroup)}
}

// AddEGroup records a newly evaluated edge-group under
// (subsystem, type), in insertion order.
func (a *API) AddEGroup(subsystem, typ string, eg *EGroup) {
	k := key{subsystem, typ}
	if _, seen := a.groups[k]; !seen {
		a.order = append(a.order, k)
	}
	a.groups[k] = append(a.groups[k], eg)
}

// EGroups returns the edge-groups recorded under (subsystem, type),
// in the order policy inserted them. The returned slice must not be
// mutated by the caller.
func (a *API) EGroups(subsystem, typ string) []*EGroup {
	return a.groups[key{subsystem, typ}]
}

// Types returns the (subsystem, type) pairs that have at least one
// recorded edge-group, in first-insertion order.
func (a *API) Types() []struct{ Subsystem, Type string } {
	out := make([]struct{ Subsystem, Type string }, len(a.order))
	for i, k := range a.order {
		out[i] = struct{ Subsystem, Type string }{k.Subsystem, k.Type}
	}
	return out
}

// QualifiedCount returns the total satisfying quantity recorded for
// (subsystem, type) under this vertex: the sum of Count across every
// edge-group evaluated for that pair.
func (a *API) QualifiedCount(subsystem, typ string) int64 {
	var total int64
	for _, eg := range a.groups[key{subsystem, typ}] {
		total += eg.Count
	}
	return total
}

// Merge folds src's edge-groups into a, preserving src's relative
// insertion order after a's existing entries. Used when a child
// vertex's published egroups are absorbed into its parent's
// scratchpad (spec section 4.6.3 step 5).
func (a *API) Merge(subsystem, typ string, src *API) {
	for _, eg := range src.EGroups(subsystem, typ) {
		a.AddEGroup(subsystem, typ, eg)
	}
}
