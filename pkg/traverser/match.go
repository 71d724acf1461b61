package traverser

import (
	"sort"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/rset"
	"github.com/cuemby/fluxion/pkg/scoring"
)

// candidate is one scored, matched subtree under consideration for a
// single jobspec resource node.
type candidate struct {
	handle graph.Handle
	qty    int64
	score  int64
	allocs []rset.Alloc
}

// feasibilityPrecheck counts node-type descendants satisfying the
// jobspec's node requirement that are up and available over
// [at,at+duration) (spec section 4.6.3 step 1).
func (tr *Traverser) feasibilityPrecheck(g *graph.Graph, root graph.Handle, js *jobspec.Jobspec, at int64, isSatOp bool) error {
	need := nodeCountNeeded(js.Resources)
	if need == 0 {
		return nil
	}
	var avail int64
	for _, v := range g.Descendants(root, tr.dominant) {
		p, ok := g.Pool(v)
		if !ok || p.Type != "node" || p.Status != graph.Up {
			continue
		}
		free, err := p.Planner.AvailResourcesDuring(at, js.Duration)
		if err == nil && free >= 1 {
			avail++
		}
	}
	if avail < need {
		if isSatOp {
			return rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "insufficient up nodes for jobspec")
		}
		return rpcerr.New(rpcerr.KindBusy, rpcerr.EBUSY, "insufficient up nodes for jobspec")
	}
	return nil
}

func nodeCountNeeded(resources []*jobspec.Resource) int64 {
	var total int64
	for _, r := range resources {
		if r.Type == "node" {
			min := r.Count.Min
			if min == 0 {
				min = 1
			}
			total += min
		}
		total += nodeCountNeeded(r.With)
	}
	return total
}

// attempt runs one full match of js against root at time at, returning
// the accepted plan or a Busy/Unsatisfiable error. It never mutates
// the graph: planner spans are applied later by commit, only once
// Run has accepted the result (spec section 5's rollback requirement
// falls out for free since nothing is written until acceptance).
func (tr *Traverser) attempt(g *graph.Graph, root graph.Handle, js *jobspec.Jobspec, at int64, iters *iterCount) (*plan, error) {
	sc := scoring.New()
	var allocs []rset.Alloc
	var total int64

	excluded := make(map[graph.Handle]bool)
	for _, spec := range js.Resources {
		specAllocs, score, err := tr.matchChild(g, root, spec, at, js.Duration, sc, excluded)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, specAllocs...)
		total += score
		if graphScore := tr.policy.DomFinishGraph(tr.dominant, spec, sc); graphScore < 0 {
			return nil, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "policy rejected candidate set at root")
		}
	}

	if len(allocs) == 0 {
		return nil, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "jobspec matched nothing in the graph")
	}
	return &plan{allocs: allocs, score: total}, nil
}

// matchChild resolves one jobspec resource node under root: an
// ordinary typed node is matched by pickCandidates directly and its
// winners recorded as an edge-group under sc for the caller's finish
// callback, while a slot node (Type == "" with Slot set) is handed to
// matchSlot instead, since it names no graph type of its own. excluded
// carries vertices already spoken for earlier in this same attempt
// (spent slot repetitions, in particular) so they aren't handed out
// twice.
func (tr *Traverser) matchChild(g *graph.Graph, root graph.Handle, spec *jobspec.Resource, at, duration int64, sc *scoring.API, excluded map[graph.Handle]bool) ([]rset.Alloc, int64, error) {
	if spec.Slot != nil {
		return tr.matchSlot(g, root, spec, at, duration, excluded)
	}

	need := tr.policy.CalcEffectiveMax(spec)
	winners, err := tr.pickCandidates(g, root, spec, at, duration, need, excluded)
	if err != nil {
		return nil, 0, err
	}
	var allocs []rset.Alloc
	var total int64
	for _, w := range winners {
		allocs = append(allocs, w.allocs...)
		total += w.score
		sc.AddEGroup(tr.dominant, spec.Type, &scoring.EGroup{
			Edges: []scoring.EdgeRef{{To: w.handle, Qty: w.qty}},
			Score: w.score,
			Count: w.qty,
		})
	}
	return allocs, total, nil
}

// matchSlot implements the "give me N copies of this shape" construct
// (spec section 4.6.3 step 3c): spec itself has no graph vertex, so
// nslots repetitions of spec.With are matched under root instead of
// descending into a child vertex. Each repetition is scored and
// accepted independently through DomFinishSlot, which aggregates the
// repetition's own edge-groups. Vertices claimed by one repetition are
// added to excluded before the next runs, since nothing is committed
// to the graph's planners until the whole attempt is accepted.
func (tr *Traverser) matchSlot(g *graph.Graph, root graph.Handle, spec *jobspec.Resource, at, duration int64, excluded map[graph.Handle]bool) ([]rset.Alloc, int64, error) {
	nslots := tr.policy.CalcEffectiveMax(spec)
	var allocs []rset.Alloc
	var total int64
	for i := int64(0); i < nslots; i++ {
		sc := scoring.New()
		for _, child := range spec.With {
			childAllocs, childScore, err := tr.matchChild(g, root, child, at, duration, sc, excluded)
			if err != nil {
				return nil, 0, err
			}
			allocs = append(allocs, childAllocs...)
			total += childScore
			for _, a := range childAllocs {
				excluded[a.Handle] = true
			}
		}
		if score := tr.policy.DomFinishSlot(tr.dominant, sc); score < 0 {
			return nil, 0, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "policy rejected slot instance")
		}
	}
	return allocs, total, nil
}

// pickCandidates enumerates every distinct matching subtree for spec
// reachable from searchRoot (inclusive) in the dominant subsystem,
// skipping anything already in excluded, and returns the top `need` by
// policy score.
func (tr *Traverser) pickCandidates(g *graph.Graph, searchRoot graph.Handle, spec *jobspec.Resource, at, duration int64, need int64, excluded map[graph.Handle]bool) ([]candidate, error) {
	if need <= 0 {
		need = 1
	}
	var found []candidate
	for _, v := range g.Descendants(searchRoot, tr.dominant) {
		if excluded[v] {
			continue
		}
		c, ok := tr.evaluate(g, v, spec, at, duration, excluded)
		if ok {
			found = append(found, c)
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if int64(len(found)) < need {
		return nil, rpcerr.New(rpcerr.KindBusy, rpcerr.EBUSY, "not enough matching resources for "+spec.Type)
	}
	return found[:need], nil
}

// evaluate scores a single candidate vertex against spec: exclusivity
// and multi-planner pruning (spec section 4.6.3 steps 3a/3b), a type
// match test, recursion into spec.With, and the policy's finish-vertex
// callback.
func (tr *Traverser) evaluate(g *graph.Graph, v graph.Handle, spec *jobspec.Resource, at, duration int64, excluded map[graph.Handle]bool) (candidate, bool) {
	pool, ok := g.Pool(v)
	if !ok || pool.Type != spec.Type || pool.Status != graph.Up {
		return candidate{}, false
	}

	exclusive := spec.Exclusive == jobspec.ExclusiveTrue || tr.policy.IsExclusiveType(pool.Type)
	if exclusive {
		free, err := pool.XChecker.AvailResourcesDuring(at, duration)
		if err != nil || free < 1 {
			return candidate{}, false
		}
	}

	// A subplan aggregates v's descendants only, so the spec's count of
	// v's own type is not checked against it.
	for typ, need := range spec.PruningTotals {
		if typ == pool.Type || pool.Subplan == nil || !pool.Subplan.HasDimension(typ) {
			continue
		}
		free, err := pool.Subplan.AvailResourcesDuring(typ, at, duration)
		if err != nil || free < need {
			return candidate{}, false
		}
	}

	avail, err := pool.Planner.AvailResourcesDuring(at, duration)
	if err != nil {
		return candidate{}, false
	}
	chosen := tr.policy.CalcCount(spec, avail)
	if chosen <= 0 {
		return candidate{}, false
	}

	allocs := []rset.Alloc{{Handle: v, Type: pool.Type, Qty: chosen, Rank: rankOf(g, v)}}
	sc := scoring.New()
	for _, child := range spec.With {
		childAllocs, _, err := tr.matchChild(g, v, child, at, duration, sc, excluded)
		if err != nil {
			return candidate{}, false
		}
		allocs = append(allocs, childAllocs...)
	}

	score := tr.policy.DomFinishVtx(pool, tr.dominant, spec, sc)
	if score < 0 {
		return candidate{}, false
	}
	return candidate{handle: v, qty: chosen, score: score, allocs: allocs}, true
}

func rankOf(g *graph.Graph, handle graph.Handle) int64 {
	r, ok := g.RankOf(handle)
	if !ok {
		return -1
	}
	return r
}
