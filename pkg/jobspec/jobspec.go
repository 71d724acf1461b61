package jobspec

import "github.com/cuemby/fluxion/internal/rpcerr"

// Operator names how a node's count composes across the multiple
// instances of its parent (spec section 4.6: "+", "*", "^").
type Operator string

const (
	OpAdd Operator = "+"
	OpMul Operator = "*"
	OpPow Operator = "^"
)

// Exclusive is a tri-state exclusivity preference: UNSPEC defers to
// the policy's AddExclusiveResourceType registrations.
type Exclusive string

const (
	ExclusiveUnspec Exclusive = "UNSPEC"
	ExclusiveTrue   Exclusive = "TRUE"
	ExclusiveFalse  Exclusive = "FALSE"
)

// Count is a resource node's requested quantity.
type Count struct {
	Min      int64    `json:"min"`
	Max      int64    `json:"max"`
	Operator Operator `json:"operator,omitempty"`
}

// Slot is the "give me N copies of this shape" construct: Label
// names the grouping, Count is how many copies, and the shape itself
// is the owning Resource's With children.
type Slot struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Resource is one node of the jobspec tree.
type Resource struct {
	Type      string      `json:"type"`
	Count     Count       `json:"count"`
	With      []*Resource `json:"with,omitempty"`
	Exclusive Exclusive   `json:"exclusive,omitempty"`
	Slot      *Slot       `json:"slot,omitempty"`

	// PruningTotals is populated by Prime: the total minimum count of
	// each pruning type required anywhere beneath (and including)
	// this node, folded up the tree (spec section 4.6.3 step 2).
	PruningTotals map[string]int64 `json:"-"`
}

// Jobspec is the root of a resource request tree plus its overall
// duration.
type Jobspec struct {
	Resources []*Resource `json:"resources"`
	Duration  int64       `json:"duration"`
}

// Validate checks the minimal structural well-formedness spec section
// 4.6.2 requires before a match attempt begins: at least one resource
// node, non-negative counts with Min <= Max, and a positive duration.
func (j *Jobspec) Validate() error {
	if j == nil || len(j.Resources) == 0 {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "jobspec has no resources")
	}
	if j.Duration <= 0 {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "jobspec duration must be positive")
	}
	for _, r := range j.Resources {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resource) validate() error {
	if r.Type == "" && r.Slot == nil {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "resource node requires a type or a slot")
	}
	if r.Count.Min < 0 || r.Count.Max < r.Count.Min {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "invalid count range")
	}
	for _, c := range r.With {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Prime folds minimum pruning-type counts up the jobspec tree so
// that every inner node carries the total minimum of each pruning
// type it (transitively) requires (spec section 4.6.3 step 2). isPruning
// reports whether a type is tracked as a pruning type in the
// traversal's dominant subsystem.
func (j *Jobspec) Prime(isPruning func(typ string) bool) {
	for _, r := range j.Resources {
		r.prime(isPruning)
	}
}

func (r *Resource) prime(isPruning func(typ string) bool) map[string]int64 {
	totals := make(map[string]int64)
	if isPruning(r.Type) {
		totals[r.Type] += r.Count.Min
	}
	for _, c := range r.With {
		for typ, n := range c.prime(isPruning) {
			mult := r.Count.Min
			if r.Slot != nil {
				mult = r.Slot.Count
			}
			if mult == 0 {
				mult = 1
			}
			totals[typ] += n * mult
		}
	}
	r.PruningTotals = totals
	return totals
}
