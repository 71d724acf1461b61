package graph

import (
	"github.com/google/uuid"

	"github.com/cuemby/fluxion/pkg/planner"
)

// Status is a pool's up/down status. Down pools and their subtrees
// are excluded from allocation but remain visible to status queries.
type Status int

const (
	Up Status = iota
	Down
)

func (s Status) String() string {
	if s == Down {
		return "down"
	}
	return "up"
}

// Handle is a stable, graph-local vertex identifier. Handles are
// never reused within a Graph's lifetime.
type Handle int64

// EdgeLabel names the subsystem and relation a directed edge belongs
// to, e.g. {"containment", "contains"} on the forward edge and
// {"containment", "in"} on its mandatory reverse.
type EdgeLabel struct {
	Subsystem string
	Relation  string
}

// Pool is one resource-graph vertex: a pool of `Size` identical
// units of `Type` (e.g. one core, 16 GB of memory, a socket).
type Pool struct {
	Handle   Handle
	UUID     uuid.UUID
	Type     string
	Basename string
	ID       int64 // -1 when the pool has no numeric instance id
	Size     int64
	Status   Status

	// Paths holds, per subsystem this pool is reachable in, its
	// absolute slash-separated path from that subsystem's root.
	Paths map[string]string

	// EdgeSubsystem records, for each outbound edge (by destination
	// handle), which subsystem and relation that edge belongs to.
	// A pool can have more than one outbound edge to the same
	// destination only across distinct subsystems.
	EdgeSubsystem map[Handle]EdgeLabel

	Properties map[string]string

	// Planner tracks reservations of this pool's own resource kind.
	// Capacity always equals Size (invariant 3 in the spec).
	Planner *planner.Planner

	// Subplan tracks, for this pool's subtree in the dominant
	// subsystem, aggregate availability of every pruning type the
	// active policy registered via SetPruningTypesWithSpec. Installed lazily
	// by traverser.Initialize; nil until then.
	Subplan *planner.MultiPlanner

	// XChecker is a secondary single-resource planner used purely
	// for cross-job exclusivity bookkeeping: it has capacity 1 and a
	// span occupies it exactly when some job holds this pool
	// exclusively over that span.
	XChecker *planner.Planner
}

// Name returns the pool's display name: basename concatenated with
// its numeric id, unless id is -1 in which case the basename alone
// is the name (spec data model, Resource Pool / Labels).
func (p *Pool) Name() string {
	if p.ID < 0 {
		return p.Basename
	}
	buf := make([]byte, 0, len(p.Basename)+8)
	buf = append(buf, p.Basename...)
	buf = appendInt(buf, p.ID)
	return string(buf)
}

func appendInt(buf []byte, v int64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	neg := v < 0
	if neg {
		v = -v
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	if neg {
		buf = append(buf, '-')
	}
	// reverse the digits just appended
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// GetProperty returns a property value and whether it was set.
func (p *Pool) GetProperty(key string) (string, bool) {
	v, ok := p.Properties[key]
	return v, ok
}

// SetProperty sets or overwrites a key/value annotation.
func (p *Pool) SetProperty(key, value string) {
	if p.Properties == nil {
		p.Properties = make(map[string]string)
	}
	p.Properties[key] = value
}

// RemoveProperty deletes a property, if present.
func (p *Pool) RemoveProperty(key string) {
	delete(p.Properties, key)
}
