package planner

import (
	"fmt"
	"sort"

	"github.com/cuemby/fluxion/internal/rpcerr"
)

// Holder identifies who owns a reservation span, almost always a
// jobid. x_checker planners (see graph.Pool) reuse the same type.
type Holder int64

// span is one reservation on the timeline.
type span struct {
	start    int64
	duration int64
	qty      int64
	holder   Holder
	seq      int64
}

func (s *span) end() int64 { return s.start + s.duration }

// Planner is a single-resource reservation timeline over one pool.
// It is mutated only by the reactor goroutine (see the concurrency
// notes in pkg/engine); it holds no internal lock.
type Planner struct {
	kind          string
	baseTime      int64
	totalDuration int64
	capacity      int64

	spans   map[Holder]*span
	nextSeq int64
}

// New creates a Planner over [baseTime, baseTime+totalDuration) with
// the given capacity, tagged with kind (e.g. "core", "gpu") for
// diagnostics.
func New(baseTime, totalDuration, capacity int64, kind string) *Planner {
	return &Planner{
		kind:          kind,
		baseTime:      baseTime,
		totalDuration: totalDuration,
		capacity:      capacity,
		spans:         make(map[Holder]*span),
	}
}

func (p *Planner) BaseTime() int64 { return p.baseTime }
func (p *Planner) Duration() int64 { return p.totalDuration }
func (p *Planner) Capacity() int64 { return p.capacity }
func (p *Planner) Kind() string    { return p.kind }
func (p *Planner) windowEnd() int64 { return p.baseTime + p.totalDuration }

// HasHolder reports whether holder currently has a reservation.
func (p *Planner) HasHolder(h Holder) bool {
	_, ok := p.spans[h]
	return ok
}

// QtyOf returns the reserved quantity for holder, or 0 if absent.
func (p *Planner) QtyOf(h Holder) int64 {
	if s, ok := p.spans[h]; ok {
		return s.qty
	}
	return 0
}

// reservedAt returns total reserved quantity active at instant t.
func (p *Planner) reservedAt(t int64) int64 {
	var total int64
	for _, s := range p.spans {
		if s.start <= t && t < s.end() {
			total += s.qty
		}
	}
	return total
}

// changePoints returns the sorted, de-duplicated set of span start
// times that fall strictly within (t0, t0+d), plus t0 itself. Between
// consecutive change points no span starts, so the reserved total can
// only fall there, and sampling reservedAt at each of these suffices
// to find the window
// maximum (piecewise-constant scheduled points, per the package doc).
func (p *Planner) changePoints(t0, d int64) []int64 {
	pts := []int64{t0}
	end := t0 + d
	for _, s := range p.spans {
		if s.start > t0 && s.start < end {
			pts = append(pts, s.start)
		}
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i] < pts[j] })
	return pts
}

// AvailResourcesDuring returns the minimum free quantity over
// [t0, t0+d).
func (p *Planner) AvailResourcesDuring(t0, d int64) (int64, error) {
	if d <= 0 {
		return 0, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "duration must be positive")
	}
	var maxReserved int64
	for _, pt := range p.changePoints(t0, d) {
		if r := p.reservedAt(pt); r > maxReserved {
			maxReserved = r
		}
	}
	return p.capacity - maxReserved, nil
}

// AddSpan reserves qty of this resource over [t0, t0+d) for holder.
// Fails with ERANGE if qty exceeds what is free anywhere in the
// window, or EINVAL if t0/d are malformed or the span would cross
// the planner's own time window boundary.
func (p *Planner) AddSpan(t0, d, qty int64, holder Holder) error {
	if t0 < p.baseTime || d <= 0 {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL,
			fmt.Sprintf("invalid span [%d,+%d) for planner base %d", t0, d, p.baseTime))
	}
	if t0+d > p.windowEnd() {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL,
			"span overlaps planner window boundary")
	}
	free, err := p.AvailResourcesDuring(t0, d)
	if err != nil {
		return err
	}
	if qty > free {
		return rpcerr.New(rpcerr.KindExhausted, rpcerr.ERANGE,
			fmt.Sprintf("capacity exceeded: requested %d, free %d", qty, free))
	}
	p.nextSeq++
	p.spans[holder] = &span{start: t0, duration: d, qty: qty, holder: holder, seq: p.nextSeq}
	return nil
}

// RemoveSpan removes holder's reservation. Idempotent: succeeds if
// holder has no reservation.
func (p *Planner) RemoveSpan(holder Holder) {
	delete(p.spans, holder)
}

// TimeIter iterates, in ascending time order, over candidate start
// times at which qty units are simultaneously free for duration d.
// Each call to Next counts as one probe, accumulated by the caller
// into perfstats' match_iter_count.
type TimeIter struct {
	p        *Planner
	d, qty   int64
	points   []int64
	pos      int
	probes   int64
}

// AvailTimeFirst begins an iteration for qty units over duration d,
// starting the search no earlier than t. Returns ERANGE immediately
// if qty exceeds total capacity, since no point could ever satisfy it.
func (p *Planner) AvailTimeFirst(t, d, qty int64) (*TimeIter, error) {
	if qty > p.capacity {
		return nil, rpcerr.New(rpcerr.KindExhausted, rpcerr.ERANGE,
			fmt.Sprintf("requested qty %d exceeds capacity %d", qty, p.capacity))
	}
	if t < p.baseTime {
		t = p.baseTime
	}
	pts := map[int64]struct{}{t: {}}
	for _, s := range p.spans {
		if s.start >= t {
			pts[s.start] = struct{}{}
		}
		if s.end() >= t {
			pts[s.end()] = struct{}{}
		}
	}
	sorted := make([]int64, 0, len(pts))
	for pt := range pts {
		sorted = append(sorted, pt)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &TimeIter{p: p, d: d, qty: qty, points: sorted}, nil
}

// Next advances to, and returns, the next candidate time at which
// qty is simultaneously free for d. Returns ENOENT once the planner's
// window is exhausted.
func (it *TimeIter) Next() (int64, error) {
	for it.pos < len(it.points) {
		t := it.points[it.pos]
		it.pos++
		it.probes++
		if t+it.d > it.p.windowEnd() {
			continue
		}
		free, err := it.p.AvailResourcesDuring(t, it.d)
		if err != nil {
			return -1, err
		}
		if free >= it.qty {
			return t, nil
		}
	}
	return -1, rpcerr.New(rpcerr.KindUnsatisfiable, rpcerr.ENOENT, "no feasible start time in planner window")
}

// Probes returns the number of Next calls made so far, for
// perfstats.Series.MatchIterCt bookkeeping.
func (it *TimeIter) Probes() int64 { return it.probes }
