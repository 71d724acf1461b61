package traverser

import (
	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/planner"
	"github.com/cuemby/fluxion/pkg/rset"
)

// Update deserializes R with reader and replays its reservation onto
// the graph (spec section 4.6.4), used to rehydrate a job surfaced by
// the resource-acquire stream. Replaying an R whose allocations are
// already exactly held by jobid is a no-op (idempotent).
func (tr *Traverser) Update(g *graph.Graph, reader rset.Reader, format rset.Format, jobid int64, rtext string, at, duration int64) error {
	sel, err := reader.Parse(g, format, rtext)
	if err != nil {
		return err
	}
	holder := planner.Holder(jobid)

	if alreadyHeld(g, holder, sel.Allocs) {
		return nil
	}

	for _, a := range sel.Allocs {
		pool, ok := g.Pool(a.Handle)
		if !ok {
			return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "R references unknown vertex")
		}
		if pool.Planner.HasHolder(holder) {
			return rpcerr.New(rpcerr.KindConflict, rpcerr.EINVAL, "conflicting R for existing jobid")
		}
		if err := pool.Planner.AddSpan(at, duration, a.Qty, holder); err != nil {
			return err
		}
		if tr.policy.IsPruningType(tr.dominant, pool.Type) {
			for _, ancestor := range ancestorChain(g, a.Handle, tr.dominant) {
				ap, ok := g.Pool(ancestor)
				if !ok || ap.Subplan == nil || !ap.Subplan.HasDimension(pool.Type) {
					continue
				}
				_ = ap.Subplan.AddSpan(pool.Type, at, duration, a.Qty, holder)
			}
		}
	}
	return nil
}

func alreadyHeld(g *graph.Graph, holder planner.Holder, allocs []rset.Alloc) bool {
	if len(allocs) == 0 {
		return false
	}
	for _, a := range allocs {
		pool, ok := g.Pool(a.Handle)
		if !ok || !pool.Planner.HasHolder(holder) || pool.Planner.QtyOf(holder) != a.Qty {
			return false
		}
	}
	return true
}

// Remove scans every vertex and clears any planner or x_checker span
// held by jobid (spec section 4.6.4). Resource status (up/down) is
// orthogonal and is left untouched.
func (tr *Traverser) Remove(g *graph.Graph, jobid int64) {
	holder := planner.Holder(jobid)
	for _, v := range allVertices(g) {
		pool, ok := g.Pool(v)
		if !ok {
			continue
		}
		pool.Planner.RemoveSpan(holder)
		pool.XChecker.RemoveSpan(holder)
		if pool.Subplan != nil {
			pool.Subplan.RemoveSpan(holder)
		}
	}
}

// allVertices returns every handle currently in the graph by walking
// every subsystem's root descendants, falling back to an exhaustive
// per-type scan for vertices unreachable from any declared root.
func allVertices(g *graph.Graph) []graph.Handle {
	seen := make(map[graph.Handle]bool)
	var out []graph.Handle
	add := func(h graph.Handle) {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, s := range g.Subsystems() {
		root, ok := g.Root(s)
		if !ok {
			continue
		}
		for _, v := range g.Descendants(root, s) {
			add(v)
		}
	}
	return out
}

// PartialCancel parses a subset of an R, subtracts the named spans
// from jobid's reservations, and reports whether the job has no
// remaining allocation (spec section 4.6.4).
func (tr *Traverser) PartialCancel(g *graph.Graph, reader rset.Reader, format rset.Format, jobid int64, subsetText string) (full bool, err error) {
	sel, perr := reader.Parse(g, format, subsetText)
	if perr != nil {
		return false, perr
	}
	holder := planner.Holder(jobid)
	for _, a := range sel.Allocs {
		pool, ok := g.Pool(a.Handle)
		if !ok {
			continue
		}
		pool.Planner.RemoveSpan(holder)
		pool.XChecker.RemoveSpan(holder)
		if pool.Subplan != nil {
			pool.Subplan.RemoveSpan(holder)
		}
	}
	for _, v := range allVertices(g) {
		pool, ok := g.Pool(v)
		if ok && pool.Planner.HasHolder(holder) {
			return false, nil
		}
	}
	return true, nil
}
