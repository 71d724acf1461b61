package graph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/planner"
)

// Duration is the graph's wall-clock validity window. A job ending
// after End is clamped to fit, per spec section 4.6.3 / 9.
type Duration struct {
	Start int64
	End   int64
}

// Edge is one directed graph edge, held in the arena alongside its
// mandatory reverse.
type Edge struct {
	From, To Handle
	Label    EdgeLabel
}

// Graph is a directed, multi-subsystem arena of resource pools. It
// is owned exclusively by the reactor goroutine (see pkg/engine) and
// carries no internal lock of its own.
type Graph struct {
	log zerolog.Logger

	GraphDuration Duration
	NodesUp       int64

	subsystems map[string]bool
	roots      map[string]Handle

	pools    map[Handle]*Pool
	outEdges map[Handle][]Edge
	inEdges  map[Handle][]Edge

	byType map[string][]Handle
	byPath map[string]map[string]Handle // subsystem -> path -> handle
	byName map[string]Handle
	byRank map[int64][]Handle
	rankOf map[Handle]int64

	nextHandle Handle
	remap      *RemapTable
}

// New creates an empty Graph spanning [start, end).
func New(start, end int64) *Graph {
	return &Graph{
		log:           log.WithComponent("graph"),
		GraphDuration: Duration{Start: start, End: end},
		subsystems:    make(map[string]bool),
		roots:         make(map[string]Handle),
		pools:         make(map[Handle]*Pool),
		outEdges:      make(map[Handle][]Edge),
		inEdges:       make(map[Handle][]Edge),
		byType:        make(map[string][]Handle),
		byPath:        make(map[string]map[string]Handle),
		byName:        make(map[string]Handle),
		byRank:        make(map[int64][]Handle),
		rankOf:        make(map[Handle]int64),
	}
}

// Reserve pre-sizes the graph's internal vertex indices to n, an
// optimization hint analogous to the original implementation's
// m_vertices.reserve() (config key reserve-vtx-vec). It has no effect
// once any vertex has already been added.
func (g *Graph) Reserve(n int64) {
	if n <= 0 || len(g.pools) > 0 {
		return
	}
	g.pools = make(map[Handle]*Pool, n)
	g.outEdges = make(map[Handle][]Edge, n)
	g.inEdges = make(map[Handle][]Edge, n)
	g.rankOf = make(map[Handle]int64, n)
}

// RegisterSubsystem declares a subsystem name known to the graph.
// Idempotent.
func (g *Graph) RegisterSubsystem(name string) {
	g.subsystems[name] = true
}

// KnownSubsystem reports whether name has been registered.
func (g *Graph) KnownSubsystem(name string) bool {
	return g.subsystems[name]
}

// Subsystems returns every subsystem name registered so far, in no
// particular order.
func (g *Graph) Subsystems() []string {
	out := make([]string, 0, len(g.subsystems))
	for s := range g.subsystems {
		out = append(out, s)
	}
	return out
}

// Root returns the root vertex of subsystem s.
func (g *Graph) Root(s string) (Handle, bool) {
	h, ok := g.roots[s]
	return h, ok
}

// SetRoot designates handle as the root of subsystem s, and assigns
// it the root path "/"+Name() in that subsystem (invariant 1's base
// case: roots reach themselves by the empty edge path). The
// subsystem is implicitly registered as known.
func (g *Graph) SetRoot(s string, handle Handle) {
	g.subsystems[s] = true
	g.roots[s] = handle
	if p, ok := g.pools[handle]; ok {
		path := "/" + p.Name()
		p.Paths[s] = path
		if g.byPath[s] == nil {
			g.byPath[s] = make(map[string]Handle)
		}
		g.byPath[s][path] = handle
	}
}

// AddVertex admits a new pool into the graph, assigning it a handle
// and wiring its Planner capacity to Size (invariant 3). The caller
// must not have set p.Handle; it is overwritten.
func (g *Graph) AddVertex(p *Pool) (Handle, error) {
	if p.Size < 0 {
		return 0, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "pool size must be >= 0")
	}
	g.nextHandle++
	h := g.nextHandle
	p.Handle = h
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.Paths == nil {
		p.Paths = make(map[string]string)
	}
	if p.EdgeSubsystem == nil {
		p.EdgeSubsystem = make(map[Handle]EdgeLabel)
	}
	if p.Properties == nil {
		p.Properties = make(map[string]string)
	}
	if p.Planner == nil {
		p.Planner = planner.New(g.GraphDuration.Start, g.GraphDuration.End-g.GraphDuration.Start, p.Size, p.Type)
	}
	if p.XChecker == nil {
		p.XChecker = planner.New(g.GraphDuration.Start, g.GraphDuration.End-g.GraphDuration.Start, 1, "exclusive")
	}

	g.pools[h] = p
	g.byType[p.Type] = append(g.byType[p.Type], h)
	g.byName[p.Name()] = h
	if p.Status == Up && p.Type == "node" {
		g.NodesUp++
	}
	return h, nil
}

// Pool returns the pool at handle, if any.
func (g *Graph) Pool(h Handle) (*Pool, bool) {
	p, ok := g.pools[h]
	return p, ok
}

// mustPool is an internal accessor used where the handle is
// known-valid by construction (edge endpoints, index lookups); it
// panics on a dangling handle.
func (g *Graph) mustPool(h Handle) *Pool {
	p, ok := g.pools[h]
	if !ok {
		panic(fmt.Sprintf("graph: dangling handle %d", h))
	}
	return p
}

// AddEdge adds a forward edge from--rel-->to in subsystem s, plus the
// mandatory reverse edge. If the parent has a path in s, the child's
// path is derived and the by-path index updated (invariant 1 / 2 in
// the spec's data model).
func (g *Graph) AddEdge(from, to Handle, subsystem, relation string) error {
	if _, ok := g.pools[from]; !ok {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown source vertex")
	}
	child, ok := g.pools[to]
	if !ok {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "unknown destination vertex")
	}
	g.subsystems[subsystem] = true

	fwd := EdgeLabel{Subsystem: subsystem, Relation: relation}
	g.outEdges[from] = append(g.outEdges[from], Edge{From: from, To: to, Label: fwd})
	g.mustPool(from).EdgeSubsystem[to] = fwd

	rev := EdgeLabel{Subsystem: subsystem, Relation: reverseRelation(relation)}
	g.inEdges[to] = append(g.inEdges[to], Edge{From: to, To: from, Label: rev})

	if parentPath, ok := g.mustPool(from).Paths[subsystem]; ok {
		childPath := parentPath + "/" + child.Name()
		child.Paths[subsystem] = childPath
		if g.byPath[subsystem] == nil {
			g.byPath[subsystem] = make(map[string]Handle)
		}
		g.byPath[subsystem][childPath] = to
	}
	return nil
}

func reverseRelation(relation string) string {
	switch relation {
	case "contains":
		return "in"
	case "in":
		return "contains"
	default:
		return "rev:" + relation
	}
}

// OutEdges returns the outbound edges of handle in subsystem s, in
// insertion order.
func (g *Graph) OutEdges(handle Handle, s string) []Edge {
	var out []Edge
	for _, e := range g.outEdges[handle] {
		if e.Label.Subsystem == s {
			out = append(out, e)
		}
	}
	return out
}

// InEdges returns the inbound edges of handle in subsystem s.
func (g *Graph) InEdges(handle Handle, s string) []Edge {
	var in []Edge
	for _, e := range g.inEdges[handle] {
		if e.Label.Subsystem == s {
			in = append(in, e)
		}
	}
	return in
}

// ByPath resolves a subsystem-scoped path to its vertex.
func (g *Graph) ByPath(subsystem, path string) (Handle, bool) {
	m, ok := g.byPath[subsystem]
	if !ok {
		return 0, false
	}
	h, ok := m[path]
	return h, ok
}

// ByType returns every vertex of the given type, in insertion order.
func (g *Graph) ByType(t string) []Handle {
	out := make([]Handle, len(g.byType[t]))
	copy(out, g.byType[t])
	return out
}

// ByName resolves a pool's display name to its vertex.
func (g *Graph) ByName(name string) (Handle, bool) {
	h, ok := g.byName[name]
	return h, ok
}

// ByRank returns every vertex registered under an execution rank.
func (g *Graph) ByRank(rank int64) []Handle {
	out := make([]Handle, len(g.byRank[rank]))
	copy(out, g.byRank[rank])
	return out
}

// RegisterRank associates handle with execution rank, used by "node"
// type vertices that correspond 1:1 with an execution target.
func (g *Graph) RegisterRank(rank int64, handle Handle) {
	g.byRank[rank] = append(g.byRank[rank], handle)
	g.rankOf[handle] = rank
}

// RankOf returns the execution rank handle was registered under or,
// for an unregistered vertex, the rank of its nearest registered
// ancestor (following the first inbound edge at each step), if any.
// Used when emitting R sets, whose R_lite entries are grouped by rank.
func (g *Graph) RankOf(handle Handle) (int64, bool) {
	seen := make(map[Handle]bool)
	for cur := handle; !seen[cur]; {
		if r, ok := g.rankOf[cur]; ok {
			return r, true
		}
		seen[cur] = true
		in := g.inEdges[cur]
		if len(in) == 0 {
			break
		}
		cur = in[0].To
	}
	return 0, false
}

// ByRankTypeID resolves the vertex of type typ and numeric instance
// id id whose effective rank (RankOf, or -1 if unregistered) matches
// rank. This is the inverse of the (rank, type, local id) triple an
// R_lite idset entry carries, used to rehydrate a Selection from a
// parsed R set.
func (g *Graph) ByRankTypeID(rank int64, typ string, id int64) (Handle, bool) {
	for h, p := range g.pools {
		if p.Type != typ || p.ID != id {
			continue
		}
		r, ok := g.RankOf(h)
		if !ok {
			r = -1
		}
		if r == rank {
			return h, true
		}
	}
	return 0, false
}

// Descendants returns every vertex reachable from handle by
// subsystem-s outbound edges, handle itself included, in pre-order.
func (g *Graph) Descendants(handle Handle, s string) []Handle {
	var out []Handle
	var walk func(Handle)
	walk = func(h Handle) {
		out = append(out, h)
		for _, e := range g.OutEdges(h, s) {
			walk(e.To)
		}
	}
	walk(handle)
	return out
}

// RemapTable translates external loader-local ids (e.g. hwloc
// logical core indices) into graph-global handles. It must be
// populated before Load uses it; a second registration of the same
// external id is an EEXIST collision.
type RemapTable struct {
	byExternal map[string]Handle
}

// NewRemapTable creates an empty remap table.
func NewRemapTable() *RemapTable {
	return &RemapTable{byExternal: make(map[string]Handle)}
}

// Register binds externalID to handle. Returns EEXIST if externalID
// is already bound.
func (r *RemapTable) Register(externalID string, handle Handle) error {
	if _, exists := r.byExternal[externalID]; exists {
		return rpcerr.ErrRemapCollision
	}
	r.byExternal[externalID] = handle
	return nil
}

// Resolve looks up the graph handle for an external id.
func (r *RemapTable) Resolve(externalID string) (Handle, bool) {
	h, ok := r.byExternal[externalID]
	return h, ok
}

// UseRemapTable registers remapping for this graph's Load calls. Must
// be called before Load, per spec section 4.3.
func (g *Graph) UseRemapTable(r *RemapTable) {
	g.remap = r
}

// RemapTable returns the currently registered remap table, if any.
func (g *Graph) RemapTable() *RemapTable {
	return g.remap
}

// GraphReader is a stateful visitor that ingests one batch of
// external resource-spec text into a growing Graph. Concrete
// readers (hwloc, JGF, rv1exec) are external collaborators per spec
// scope; only this interface lives here.
type GraphReader interface {
	Unpack(g *Graph, text string, rank int64) error
}

// Load ingests one batch from reader, the only sanctioned way to
// grow the graph after construction (spec section 4.3).
func (g *Graph) Load(specText string, reader GraphReader, rank int64) error {
	if reader == nil {
		return rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "nil reader")
	}
	if err := reader.Unpack(g, specText, rank); err != nil {
		return err
	}
	g.log.Info().Int64("rank", rank).Msg("graph: loaded batch")
	return nil
}

// SetStatus flips a pool's up/down status, updating NodesUp. It does
// not itself touch the pool's Planner; that is traverser.Mark's job
// (DOWN zeros effective capacity via an exclusive spanning
// reservation, spec section 4.6.6).
func (g *Graph) SetStatus(handle Handle, status Status) error {
	p, ok := g.pools[handle]
	if !ok {
		return rpcerr.ErrNotFound
	}
	if p.Status == status {
		return nil
	}
	if p.Type == "node" {
		if status == Up {
			g.NodesUp++
		} else {
			g.NodesUp--
		}
	}
	p.Status = status
	return nil
}

// RemoveVertex deletes a single vertex and its edges from every
// index. It does not cascade to descendants; callers walk
// Descendants first when a whole subtree must go (see
// traverser.RemoveSubgraph).
func (g *Graph) RemoveVertex(handle Handle) {
	p, ok := g.pools[handle]
	if !ok {
		return
	}
	if p.Status == Up && p.Type == "node" {
		g.NodesUp--
	}
	for _, e := range g.outEdges[handle] {
		g.removeFromSlice(&g.inEdges[e.To], handle)
	}
	for _, e := range g.inEdges[handle] {
		g.removeFromSlice(&g.outEdges[e.To], handle)
	}
	delete(g.outEdges, handle)
	delete(g.inEdges, handle)
	delete(g.pools, handle)
	g.byType[p.Type] = removeHandle(g.byType[p.Type], handle)
	delete(g.byName, p.Name())
	if rank, ok := g.rankOf[handle]; ok {
		g.byRank[rank] = removeHandle(g.byRank[rank], handle)
		delete(g.rankOf, handle)
	}
	for subsystem, path := range p.Paths {
		if m, ok := g.byPath[subsystem]; ok {
			delete(m, path)
		}
	}
}

func (g *Graph) removeFromSlice(edges *[]Edge, other Handle) {
	filtered := (*edges)[:0]
	for _, e := range *edges {
		if e.To != other {
			filtered = append(filtered, e)
		}
	}
	*edges = filtered
}

func removeHandle(hs []Handle, target Handle) []Handle {
	out := hs[:0]
	for _, h := range hs {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// V returns the number of vertices currently in the graph, for the
// …resource.stats-get response.
func (g *Graph) V() int { return len(g.pools) }

// E returns the number of directed edges currently in the graph
// (forward and reverse both counted, matching what was actually
// stored).
func (g *Graph) E() int {
	var n int
	for _, edges := range g.outEdges {
		n += len(edges)
	}
	for _, edges := range g.inEdges {
		n += len(edges)
	}
	return n
}
