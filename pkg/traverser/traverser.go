package traverser

import (
	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/planner"
	"github.com/cuemby/fluxion/pkg/policy"
	"github.com/cuemby/fluxion/pkg/rset"
)

// Traverser runs DFU match operations against a Graph under one
// Policy. It holds no graph state of its own between calls; Initialize
// must be re-run whenever the dominant subsystem's topology changes
// (new vertices added beneath an already-primed root).
type Traverser struct {
	policy   policy.Policy
	dominant string
	primed   bool
}

// New creates a Traverser bound to p. Call Initialize before Run.
func New(p policy.Policy) *Traverser {
	return &Traverser{policy: p}
}

// Policy returns the bound match policy.
func (tr *Traverser) Policy() policy.Policy { return tr.policy }

// Initialize primes pruning filters over the policy's dominant
// subsystem (spec section 4.6.1): every vertex's subplan gets one
// dimension per registered pruning type, sized to the sum of that
// type's descendant pool sizes (invariant 3).
func (tr *Traverser) Initialize(g *graph.Graph) error {
	subsystems := tr.policy.Subsystems()
	if len(subsystems) == 0 {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "policy declares no subsystems")
	}
	dominant := subsystems[0]
	root, ok := g.Root(dominant)
	if !ok {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "missing root for dominant subsystem: "+dominant)
	}

	types := tr.policy.PruningTypes(dominant)
	for _, v := range g.Descendants(root, dominant) {
		pool, ok := g.Pool(v)
		if !ok {
			continue
		}
		if pool.Subplan == nil {
			pool.Subplan = planner.NewMultiPlanner(g.GraphDuration.Start, g.GraphDuration.End-g.GraphDuration.Start)
		}
		for _, t := range types {
			capacity := sumDescendantSize(g, v, dominant, t)
			pool.Subplan.AddDimension(t, capacity)
		}
	}

	tr.dominant = dominant
	tr.primed = true
	log.WithComponent("traverser").Info().Str("policy", tr.policy.Name()).Str("subsystem", dominant).Msg("primed pruning filters")
	return nil
}

func sumDescendantSize(g *graph.Graph, v graph.Handle, subsystem, typ string) int64 {
	var total int64
	for _, d := range g.Descendants(v, subsystem) {
		if d == v {
			continue
		}
		p, ok := g.Pool(d)
		if ok && p.Type == typ {
			total += p.Size
		}
	}
	return total
}

// Run executes one match operation (spec section 4.6.2/4.6.3).
func (tr *Traverser) Run(g *graph.Graph, js *jobspec.Jobspec, jobid int64, op Op, at int64, format rset.Format) (*Result, error) {
	if !tr.primed {
		return nil, rpcerr.New(rpcerr.KindFatal, rpcerr.EPROTO, "traverser not initialized")
	}
	if err := js.Validate(); err != nil {
		return nil, err
	}

	root, ok := g.Root(tr.dominant)
	if !ok {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "missing dominant root")
	}

	isSatOp := op == OpSatisfiability || op == OpAllocateWithSatisfiability || op == OpMatchWithoutAllocating

	// ALLOCATE_ORELSE_RESERVE goes on to search later start times when
	// too few nodes are free at `at`, so a busy precheck does not end it.
	if err := tr.feasibilityPrecheck(g, root, js, at, isSatOp); err != nil && !(op == OpAllocateOrElseReserve && rpcerrIsBusy(err)) {
		return nil, err
	}

	js.Prime(func(typ string) bool { return tr.policy.IsPruningType(tr.dominant, typ) })

	iters := &iterCount{}

	switch op {
	case OpAllocate:
		p, err := tr.attempt(g, root, js, at, iters)
		if err != nil {
			return nil, err
		}
		return tr.finish(g, js, jobid, p, at, StatusAllocated, format, iters.n)

	case OpMatchWithoutAllocating:
		p, err := tr.attempt(g, root, js, at, iters)
		if err != nil {
			return nil, err
		}
		return tr.finish(g, js, jobid, p, at, StatusMatched, format, iters.n)

	case OpSatisfiability:
		_, err := tr.attempt(g, root, js, at, iters)
		if err == nil {
			return &Result{JobID: jobid, Status: StatusMatched, At: at, Iters: iters.n}, nil
		}
		if !rpcerrIsBusy(err) {
			return nil, err
		}
		farAt := g.GraphDuration.End - js.Duration - 1
		if _, err2 := tr.attempt(g, root, js, farAt, iters); err2 != nil {
			return nil, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "unsatisfiable even at graph end")
		}
		return nil, rpcerr.ErrBusy

	case OpAllocateWithSatisfiability:
		p, err := tr.attempt(g, root, js, at, iters)
		if err == nil {
			return tr.finish(g, js, jobid, p, at, StatusAllocated, format, iters.n)
		}
		if !rpcerrIsBusy(err) {
			return nil, err
		}
		farAt := g.GraphDuration.End - js.Duration - 1
		if _, err2 := tr.attempt(g, root, js, farAt, iters); err2 != nil {
			return nil, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENODEV, "unsatisfiable even at graph end")
		}
		return nil, rpcerr.ErrBusy

	case OpAllocateOrElseReserve:
		p, err := tr.attempt(g, root, js, at, iters)
		if err == nil {
			return tr.finish(g, js, jobid, p, at, StatusAllocated, format, iters.n)
		}
		if !rpcerrIsBusy(err) {
			return nil, err
		}
		req := combinedPruningTotals(js)
		rootPool, _ := g.Pool(root)
		if rootPool == nil || rootPool.Subplan == nil {
			return nil, rpcerr.ErrBusy
		}
		it, err := rootPool.Subplan.AvailTimeFirst(at, js.Duration, req)
		if err != nil {
			return nil, rpcerr.ErrBusy
		}
		for {
			t, nerr := it.Next()
			if nerr != nil {
				iters.n = it.Probes()
				return nil, rpcerr.ErrBusy
			}
			p2, merr := tr.attempt(g, root, js, t, iters)
			if merr == nil {
				iters.n = it.Probes()
				return tr.finish(g, js, jobid, p2, t, StatusReserved, format, iters.n)
			}
			if !rpcerrIsBusy(merr) {
				return nil, merr
			}
		}

	default:
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown op: "+string(op))
	}
}

type iterCount struct{ n int64 }

// combinedPruningTotals folds every top-level resource's primed
// pruning totals into one map, for a root-level AvailTimeFirst probe.
func combinedPruningTotals(js *jobspec.Jobspec) map[string]int64 {
	out := make(map[string]int64)
	for _, r := range js.Resources {
		for typ, n := range r.PruningTotals {
			out[typ] += n
		}
	}
	return out
}

func rpcerrIsBusy(err error) bool {
	rerr, ok := err.(*rpcerr.Error)
	return ok && rerr.Kind == rpcerr.KindBusy
}

// finish applies a plan's allocations to the graph (unless this is a
// non-committing op) and emits the R set (spec section 4.6.3 steps 7
// and 8).
func (tr *Traverser) finish(g *graph.Graph, js *jobspec.Jobspec, jobid int64, p *plan, at int64, status Status, format rset.Format, iters int64) (*Result, error) {
	if status != StatusMatched {
		if err := tr.commit(g, js, jobid, p, at); err != nil {
			return nil, err
		}
	}
	sel := &rset.Selection{JobID: jobid, At: at, Duration: js.Duration, Allocs: p.allocs}
	text, err := rset.Emit(g, sel, format)
	if err != nil {
		return nil, err
	}
	return &Result{JobID: jobid, Status: status, At: at, R: text, Iters: iters}, nil
}

// commit applies the chosen plan's spans to every matched vertex's
// Planner and, for vertices of a tracked pruning type, to every
// ancestor's Subplan along the dominant path (spec section 4.6.3 step 7).
func (tr *Traverser) commit(g *graph.Graph, js *jobspec.Jobspec, jobid int64, p *plan, at int64) error {
	duration := js.Duration
	if at+duration > g.GraphDuration.End {
		duration = g.GraphDuration.End - at
	}
	holder := planner.Holder(jobid)
	for _, a := range p.allocs {
		pool, ok := g.Pool(a.Handle)
		if !ok {
			continue
		}
		if err := pool.Planner.AddSpan(at, duration, a.Qty, holder); err != nil {
			return err
		}
		if tr.policy.IsExclusiveType(pool.Type) {
			_ = pool.XChecker.AddSpan(at, duration, 1, holder)
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

// ancestorChain walks from handle up to (but excluding) handle itself,
// following the first inbound subsystem edge at each step, assuming a
// tree-shaped containment hierarchy.
func ancestorChain(g *graph.Graph, handle graph.Handle, subsystem string) []graph.Handle {
	var out []graph.Handle
	cur := handle
	seen := map[graph.Handle]bool{cur: true}
	for {
		in := g.InEdges(cur, subsystem)
		if len(in) == 0 {
			return out
		}
		parent := in[0].To
		if seen[parent] {
			return out
		}
		seen[parent] = true
		out = append(out, parent)
		cur = parent
	}
}
