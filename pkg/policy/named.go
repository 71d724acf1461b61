package policy

import (
	"math"
	"sort"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/scoring"
)

// first accepts the first feasible match; every finish callback
// returns the baseline score so traversal order alone decides which
// candidate wins ties.
type first struct{ Base }

func newFirst() *first {
	b := NewBase("first", []string{"containment"})
	return &first{Base: b}
}

func (p *first) DomFinishVtx(v *graph.Pool, subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return scoring.MatchMet
}

func (p *first) DomFinishGraph(subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return scoring.MatchMet
}

func (p *first) DomFinishSlot(subsystem string, s *scoring.API) int64 {
	return scoring.MatchMet
}

// high scores a vertex by its own handle, lexicographically highest
// wins (spec section 4.5).
type high struct{ Base }

func newHigh() *high {
	b := NewBase("high", []string{"containment"})
	return &high{Base: b}
}

func (p *high) DomFinishVtx(v *graph.Pool, subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return int64(v.Handle)
}

func (p *high) DomFinishGraph(subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return bestScore(s, subsystem, r, true)
}

func (p *high) DomFinishSlot(subsystem string, s *scoring.API) int64 {
	return scoring.MatchMet
}

// low is high's mirror: lowest handle wins. The score is
// math.MaxInt32 minus the handle, so it stays non-negative (an
// acceptance) while falling as the handle rises.
type low struct{ Base }

func newLow() *low {
	b := NewBase("low", []string{"containment"})
	return &low{Base: b}
}

func (p *low) DomFinishVtx(v *graph.Pool, subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return math.MaxInt32 - int64(v.Handle)
}

func (p *low) DomFinishGraph(subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return bestScore(s, subsystem, r, true)
}

func (p *low) DomFinishSlot(subsystem string, s *scoring.API) int64 {
	return scoring.MatchMet
}

// locality prefers edge-groups whose chosen children share the
// fewest distinct parents, i.e. a tighter packing under a common
// ancestor (spec section 4.5: "prefer edges under a common
// ancestor"). It scores a vertex by math.MaxInt32 minus the count of
// distinct destination vertices touched across its egroups, so the
// score stays non-negative: fewer destinations at a deeper level of
// aggregation score higher.
type locality struct{ Base }

func newLocality() *locality {
	b := NewBase("locality", []string{"containment"})
	return &locality{Base: b}
}

func (p *locality) DomFinishVtx(v *graph.Pool, subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	seen := make(map[graph.Handle]bool)
	for _, typ := range s.Types() {
		for _, eg := range s.EGroups(typ.Subsystem, typ.Type) {
			for _, e := range eg.Edges {
				seen[e.To] = true
			}
		}
	}
	return math.MaxInt32 - int64(len(seen))
}

func (p *locality) DomFinishGraph(subsystem string, r *jobspec.Resource, s *scoring.API) int64 {
	return bestScore(s, subsystem, r, true)
}

func (p *locality) DomFinishSlot(subsystem string, s *scoring.API) int64 {
	return scoring.MatchMet
}

// bestScore folds every recorded egroup score for (subsystem,
// r.Type) down to a single graph-level acceptance score: the maximum
// recorded, or MatchMet if nothing was recorded. Used by the
// handle-ordered policies, whose real preference is expressed at
// DomFinishVtx and just needs to surface cleanly at the root.
func bestScore(s *scoring.API, subsystem string, r *jobspec.Resource, wantMax bool) int64 {
	groups := s.EGroups(subsystem, r.Type)
	if len(groups) == 0 {
		return scoring.MatchMet
	}
	scores := make([]int64, len(groups))
	for i, eg := range groups {
		scores[i] = eg.Score
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i] < scores[j] })
	if wantMax {
		return scores[len(scores)-1]
	}
	return scores[0]
}
