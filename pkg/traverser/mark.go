package traverser

import (
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/planner"
)

// downHolder is the sentinel planner holder Mark(DOWN, ...) uses to
// occupy a vertex's remaining free capacity. It never collides with a
// real jobid, which is always >= 0.
const downHolder planner.Holder = -1

// Mark flips status on the subtree rooted at handle in subsystem
// (spec section 4.6.6). DOWN occupies each vertex's currently-free
// planner capacity with a sentinel holder so future availability
// queries see zero free, without evicting any existing allocation;
// UP releases that sentinel span. mark(DOWN); mark(UP) is therefore
// an identity on planner state for vertices holding no real
// allocation (invariant 6).
func (tr *Traverser) Mark(g *graph.Graph, handle graph.Handle, subsystem string, status graph.Status) (ids []graph.Handle) {
	for _, v := range g.Descendants(handle, subsystem) {
		pool, ok := g.Pool(v)
		if !ok {
			continue
		}
		switch status {
		case graph.Down:
			if pool.Status == graph.Up {
				_ = g.SetStatus(v, graph.Down)
				ids = append(ids, v)
			}
			if !pool.Planner.HasHolder(downHolder) {
				if free, err := pool.Planner.AvailResourcesDuring(pool.Planner.BaseTime(), pool.Planner.Duration()); err == nil && free > 0 {
					_ = pool.Planner.AddSpan(pool.Planner.BaseTime(), pool.Planner.Duration(), free, downHolder)
				}
			}
		case graph.Up:
			if pool.Status == graph.Down {
				_ = g.SetStatus(v, graph.Up)
				ids = append(ids, v)
			}
			pool.Planner.RemoveSpan(downHolder)
		}
	}
	return ids
}

// RemoveSubgraph removes handle and every descendant in subsystem
// from the graph, children before parents, supplementing the spec
// with a feature the original implementation exposes (resource
// removal on a controller's "expired" ranks). Existing allocations
// held by vertices in the subtree are not reclaimed; callers should
// Remove the owning jobs first if a clean teardown is required.
func (tr *Traverser) RemoveSubgraph(g *graph.Graph, handle graph.Handle, subsystem string) {
	order := postOrder(g, handle, subsystem)
	for _, v := range order {
		g.RemoveVertex(v)
	}
}

// RemoveByRanks removes every vertex registered under any of ranks,
// cascading to their descendants.
func (tr *Traverser) RemoveByRanks(g *graph.Graph, subsystem string, ranks []int64) {
	for _, rank := range ranks {
		for _, v := range g.ByRank(rank) {
			tr.RemoveSubgraph(g, v, subsystem)
		}
	}
}

func postOrder(g *graph.Graph, handle graph.Handle, subsystem string) []graph.Handle {
	var out []graph.Handle
	var walk func(graph.Handle)
	walk = func(v graph.Handle) {
		for _, e := range g.OutEdges(v, subsystem) {
			walk(e.To)
		}
		out = append(out, v)
	}
	walk(handle)
	return out
}
