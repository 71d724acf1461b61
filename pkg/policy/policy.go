package policy

import (
	"strings"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/scoring"
)

// Reject is the score a Finish callback returns to reject a
// candidate; any value >= scoring.MatchMet is an acceptance.
const Reject int64 = -1

// Policy is the pluggable scoring/selection strategy the DFU
// traverser invokes at every graph-visit event (spec section 4.5).
type Policy interface {
	// Name reports the policy's registered name.
	Name() string

	// Subsystems reports the dominant subsystem first, followed by
	// any auxiliary subsystems this policy upwalks.
	Subsystems() []string

	// SetSubsystems overrides the dominant-first subsystem list,
	// letting configuration (spec section 6's "subsystems" key) take
	// precedence over the policy's compiled-in default. A nil or
	// empty slice leaves the current list unchanged.
	SetSubsystems(subsystems []string)

	// DomFinishVtx scores a vertex once all its children have been
	// evaluated. A negative return rejects the candidate.
	DomFinishVtx(v *graph.Pool, subsystem string, resources *jobspec.Resource, s *scoring.API) int64

	// DomFinishGraph accepts or rejects the whole candidate set at
	// the traversal root.
	DomFinishGraph(subsystem string, resources *jobspec.Resource, s *scoring.API) int64

	// DomFinishSlot aggregates cross-child slot scoring once every
	// instance of a slot has been evaluated.
	DomFinishSlot(subsystem string, s *scoring.API) int64

	// CalcCount decides how many units of an available quantity to
	// take for a resource spec node.
	CalcCount(spec *jobspec.Resource, available int64) int64

	// CalcEffectiveMax returns a spec node's slot multiplicity: the
	// number of times its shape must be matched.
	CalcEffectiveMax(spec *jobspec.Resource) int64

	// IsPruningType reports whether (subsystem, type) is tracked in
	// vertex subplans for aggregate pruning.
	IsPruningType(subsystem, typ string) bool

	// PruningTypes returns the types registered for subsystem via
	// SetPruningTypesWithSpec, in no particular order.
	PruningTypes(subsystem string) []string

	// SetPruningTypesWithSpec registers the pruning types tracked for
	// a subsystem from a spec string like "ANY:core,ANY:node". It may
	// only be called once per subsystem; later calls are no-ops.
	SetPruningTypesWithSpec(subsystem, spec string)

	// AddExclusiveResourceType marks a resource type as always taken
	// exclusively, regardless of what the jobspec requests.
	AddExclusiveResourceType(typ string)

	// IsExclusiveType reports whether typ was registered exclusive.
	IsExclusiveType(typ string) bool
}

// Base provides the bookkeeping every named policy shares: pruning
// type registration and exclusive type tracking. Concrete policies
// embed Base and override the scoring callbacks.
type Base struct {
	name        string
	subsystems  []string
	pruning     map[string]map[string]bool
	pruningSet  map[string]bool
	exclusive   map[string]bool
}

// NewBase constructs a Base for a named policy over the given
// dominant-first subsystem list.
func NewBase(name string, subsystems []string) Base {
	return Base{
		name:       name,
		subsystems: subsystems,
		pruning:    make(map[string]map[string]bool),
		pruningSet: make(map[string]bool),
		exclusive:  make(map[string]bool),
	}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Subsystems() []string { return b.subsystems }

func (b *Base) SetSubsystems(subsystems []string) {
	if len(subsystems) > 0 {
		b.subsystems = subsystems
	}
}

func (b *Base) IsPruningType(subsystem, typ string) bool {
	types := b.pruning[subsystem]
	return types != nil && types[typ]
}

func (b *Base) PruningTypes(subsystem string) []string {
	types := b.pruning[subsystem]
	out := make([]string, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	return out
}

func (b *Base) SetPruningTypesWithSpec(subsystem, spec string) {
	if b.pruningSet[subsystem] {
		return
	}
	b.pruningSet[subsystem] = true
	types := make(map[string]bool)
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.SplitN(tok, ":", 2)
		typ := parts[len(parts)-1]
		types[typ] = true
	}
	b.pruning[subsystem] = types
}

func (b *Base) AddExclusiveResourceType(typ string) {
	b.exclusive[typ] = true
}

func (b *Base) IsExclusiveType(typ string) bool {
	return b.exclusive[typ]
}

// CalcCount is the default per-vertex count rule shared by every
// named policy in this package: a chosen candidate vertex is taken
// wholly, so the chosen quantity is simply what's available (0 if the
// vertex is fully booked). Distinct-instance counts (spec.Count.Min
// "give me 4 cores") are the job of CalcEffectiveMax, which decides
// how many distinct vertices to pick in the first place.
func (b *Base) CalcCount(spec *jobspec.Resource, available int64) int64 {
	if available <= 0 {
		return 0
	}
	return available
}

// CalcEffectiveMax returns the number of distinct graph vertices this
// spec node must be matched against: a slot's repeat count, a plain
// node's requested minimum instance count (floored at 1), or 1.
func (b *Base) CalcEffectiveMax(spec *jobspec.Resource) int64 {
	if spec.Slot != nil && spec.Slot.Count > 0 {
		return spec.Slot.Count
	}
	if spec.Count.Min > 1 {
		return spec.Count.Min
	}
	return 1
}

// New looks up the builtin factory for name and constructs it.
// Returns rpcerr.ErrRequestMalformed (EINVAL) for unknown names, per
// spec section 4.5's "unknown names yield an error at configure
// time".
func New(name string) (Policy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown match policy: "+name)
	}
	return factory(), nil
}

// Register adds a factory under name, overwriting any existing
// registration. Intended for tests and out-of-tree policies.
func Register(name string, factory func() Policy) {
	registry[name] = factory
}

var registry = map[string]func() Policy{
	"first":    func() Policy { return newFirst() },
	"high":     func() Policy { return newHigh() },
	"low":      func() Policy { return newLow() },
	"locality": func() Policy { return newLocality() },
}
