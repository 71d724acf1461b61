package planner

import (
	"sort"

	"github.com/cuemby/fluxion/internal/rpcerr"
)

// MultiPlanner composes several single-resource Planners that share
// the same base_time/duration window, so a multi-dimensional
// feasibility check at one vertex is a single traversal rather than
// one per dimension. Used for subtree pruning aggregates (graph.Pool
// subplans) and for the exclusivity x_checker, which is itself a
// one-dimensional degenerate case callers reach through Planner
// directly.
type MultiPlanner struct {
	baseTime, totalDuration int64
	order                   []string
	dims                    map[string]*Planner
}

// NewMultiPlanner creates an empty MultiPlanner over the given
// window. Dimensions are added with AddDimension.
func NewMultiPlanner(baseTime, totalDuration int64) *MultiPlanner {
	return &MultiPlanner{
		baseTime:      baseTime,
		totalDuration: totalDuration,
		dims:          make(map[string]*Planner),
	}
}

// AddDimension installs a tracked pruning type with the given
// aggregate capacity (the sum of descendant sizes of that type, per
// spec invariant 3).
func (mp *MultiPlanner) AddDimension(typ string, capacity int64) {
	if _, exists := mp.dims[typ]; exists {
		return
	}
	mp.order = append(mp.order, typ)
	mp.dims[typ] = New(mp.baseTime, mp.totalDuration, capacity, typ)
}

// HasDimension reports whether typ is tracked.
func (mp *MultiPlanner) HasDimension(typ string) bool {
	_, ok := mp.dims[typ]
	return ok
}

// Dimension returns the underlying Planner for typ, or nil.
func (mp *MultiPlanner) Dimension(typ string) *Planner {
	return mp.dims[typ]
}

// Dimensions returns the tracked pruning types in registration order.
func (mp *MultiPlanner) Dimensions() []string {
	out := make([]string, len(mp.order))
	copy(out, mp.order)
	return out
}

// AvailResourcesDuring returns free quantity of typ over [t0,t0+d).
// Returns ENOTSUP if typ is not tracked here.
func (mp *MultiPlanner) AvailResourcesDuring(typ string, t0, d int64) (int64, error) {
	p, ok := mp.dims[typ]
	if !ok {
		return 0, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "pruning type not tracked: "+typ)
	}
	return p.AvailResourcesDuring(t0, d)
}

// AddSpan reserves qty of typ over [t0,t0+d) for holder.
func (mp *MultiPlanner) AddSpan(typ string, t0, d, qty int64, holder Holder) error {
	p, ok := mp.dims[typ]
	if !ok {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "pruning type not tracked: "+typ)
	}
	return p.AddSpan(t0, d, qty, holder)
}

// RemoveSpan removes holder's reservation from every tracked
// dimension. Idempotent.
func (mp *MultiPlanner) RemoveSpan(holder Holder) {
	for _, p := range mp.dims {
		p.RemoveSpan(holder)
	}
}

// MultiTimeIter advances only to points where every requested
// dimension is simultaneously satisfied.
type MultiTimeIter struct {
	mp     *MultiPlanner
	d      int64
	req    map[string]int64
	points []int64
	pos    int
	probes int64
}

// AvailTimeFirst begins a simultaneous-feasibility search across all
// dimensions named in req (qty required per pruning type), starting
// no earlier than t, for duration d.
func (mp *MultiPlanner) AvailTimeFirst(t, d int64, req map[string]int64) (*MultiTimeIter, error) {
	for typ, qty := range req {
		p, ok := mp.dims[typ]
		if !ok {
			return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.ENOTSUP, "pruning type not tracked: "+typ)
		}
		if qty > p.capacity {
			return nil, rpcerr.New(rpcerr.KindExhausted, rpcerr.ERANGE, "requested qty exceeds capacity for "+typ)
		}
	}
	if t < mp.baseTime {
		t = mp.baseTime
	}
	ptset := map[int64]struct{}{t: {}}
	for typ := range req {
		p := mp.dims[typ]
		for _, s := range p.spans {
			if s.start >= t {
				ptset[s.start] = struct{}{}
			}
			if s.end() >= t {
				ptset[s.end()] = struct{}{}
			}
		}
	}
	points := make([]int64, 0, len(ptset))
	for pt := range ptset {
		points = append(points, pt)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	return &MultiTimeIter{mp: mp, d: d, req: req, points: points}, nil
}

// Next advances to the next simultaneously-feasible time.
func (it *MultiTimeIter) Next() (int64, error) {
	windowEnd := it.mp.baseTime + it.mp.totalDuration
	for it.pos < len(it.points) {
		t := it.points[it.pos]
		it.pos++
		it.probes++
		if t+it.d > windowEnd {
			continue
		}
		ok := true
		for typ, qty := range it.req {
			free, err := it.mp.dims[typ].AvailResourcesDuring(t, it.d)
			if err != nil {
				return -1, err
			}
			if free < qty {
				ok = false
				break
			}
		}
		if ok {
			return t, nil
		}
	}
	return -1, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENOENT, "no simultaneously feasible start time")
}

// Probes reports how many candidate points were tested.
func (it *MultiTimeIter) Probes() int64 { return it.probes }
