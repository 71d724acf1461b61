package engine

import (
	"strings"
	"time"

	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/internal/metrics"
	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/events"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/matchstate"
	"github.com/cuemby/fluxion/pkg/perfstats"
	"github.com/cuemby/fluxion/pkg/planner"
	"github.com/cuemby/fluxion/pkg/policy"
	"github.com/cuemby/fluxion/pkg/rset"
	"github.com/cuemby/fluxion/pkg/traverser"
)

// Engine owns one Graph, its MatchState and Perf/Stats, and the
// Traverser primed over it. It is the sole caller of traverser,
// matchstate, and graph methods for its graph's lifetime.
type Engine struct {
	graph     *graph.Graph
	traverser *traverser.Traverser
	state     *matchstate.MatchState
	stats     *perfstats.Stats
	broker    *events.Broker
	collector *metrics.Collector
	reader    rset.Reader
	format    rset.Format
}

// Options carries the configuration that shapes how the named match
// policy is applied over g, beyond the policy's own compiled-in
// defaults (spec section 6's "subsystems" and "prune-filters" keys).
type Options struct {
	// Subsystems, if non-empty, overrides the policy's default
	// dominant-first subsystem list.
	Subsystems []string
	// PruneFilters, if non-empty, registers the pruning types tracked
	// in the policy's dominant subsystem, one "ANY:type"/"ALL:type"
	// token per entry.
	PruneFilters []string
}

// New constructs an Engine over g using the named match policy and
// default R-set wire format. g must already have every subsystem root
// loaded; Initialize primes the traverser's pruning filters against
// it.
func New(g *graph.Graph, policyName string, format rset.Format, opts Options) (*Engine, error) {
	pol, err := policy.New(policyName)
	if err != nil {
		return nil, err
	}
	pol.SetSubsystems(opts.Subsystems)
	if len(opts.PruneFilters) > 0 {
		pol.SetPruningTypesWithSpec(pol.Subsystems()[0], strings.Join(opts.PruneFilters, ","))
	}

	tr := traverser.New(pol)
	if err := tr.Initialize(g); err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	ms := matchstate.New(broker)
	collector := metrics.NewCollector(g, ms)

	log.WithComponent("engine").Info().Str("policy", policyName).Msg("engine initialized")

	return &Engine{
		graph:     g,
		traverser: tr,
		state:     ms,
		stats:     perfstats.New(),
		broker:    broker,
		collector: collector,
		reader:    rset.NewReader(),
		format:    format,
	}, nil
}

// StartMetrics begins periodic gauge collection. Call once after New.
func (e *Engine) StartMetrics(interval time.Duration) {
	e.collector.Start(interval)
}

// Close stops background goroutines owned by the Engine (the metrics
// collector and the notification broker).
func (e *Engine) Close() {
	e.collector.Stop()
	e.broker.Stop()
}

// Match runs one of the five match operations for a new or
// resubmitted jobid (spec section 4.6.2, resource.match /
// resource.match_multi). jobid 0 requests auto-assignment via the
// match state's next-jobid sequence.
func (e *Engine) Match(jobid int64, js *jobspec.Jobspec, op traverser.Op, at int64) (*traverser.Result, error) {
	if jobid == 0 {
		next, err := e.state.NextJobID()
		if err != nil {
			return nil, err
		}
		jobid = next
	} else if e.state.IsExistent(jobid) {
		return nil, rpcerr.New(rpcerr.KindConflict, rpcerr.EINVAL, "jobid already live")
	}

	timer := metrics.NewTimer()
	result, err := e.traverser.Run(e.graph, js, jobid, op, at, e.format)
	elapsed := timer.Duration().Seconds()
	timer.ObserveDurationVec(metrics.MatchDuration, string(op))
	metrics.MatchIterations.Observe(float64(iterCountOf(result)))

	if err != nil {
		e.stats.Failed.Update(elapsed, jobid, iterCountOf(result))
		metrics.MatchesTotal.WithLabelValues(string(op), "failed").Inc()
		return nil, err
	}
	e.stats.Succeeded.Update(elapsed, jobid, result.Iters)
	metrics.MatchesTotal.WithLabelValues(string(op), "ok").Inc()

	if op != traverser.OpMatchWithoutAllocating && op != traverser.OpSatisfiability {
		vertices, verr := e.allocatedVertices(result.R)
		if verr != nil {
			return nil, verr
		}
		e.state.Upsert(&matchstate.Job{
			JobID:       jobid,
			State:       matchStateFor(result.Status),
			ScheduledAt: result.At,
			Duration:    js.Duration,
			JobspecText: "",
			R:           result.R,
			Overhead:    time.Duration(elapsed * float64(time.Second)),
			Vertices:    vertices,
		})
	}
	return result, nil
}

func iterCountOf(r *traverser.Result) int64 {
	if r == nil {
		return 0
	}
	return r.Iters
}

func matchStateFor(s traverser.Status) matchstate.State {
	switch s {
	case traverser.StatusAllocated:
		return matchstate.StateAllocated
	case traverser.StatusReserved:
		return matchstate.StateReserved
	default:
		return matchstate.StateMatched
	}
}

// allocatedVertices re-parses a just-emitted R to recover the
// {handle: qty} map matchstate.Job.Vertices needs for partial-cancel
// and the allocated status view.
func (e *Engine) allocatedVertices(rtext string) (map[int64]int64, error) {
	sel, err := e.reader.Parse(e.graph, e.format, rtext)
	if err != nil {
		return nil, err
	}
	vertices := make(map[int64]int64, len(sel.Allocs))
	for _, a := range sel.Allocs {
		vertices[int64(a.Handle)] = a.Qty
	}
	return vertices, nil
}

// Update rehydrates jobid's reservation from R text, used when the
// resource-acquire stream surfaces a job already held elsewhere (spec
// section 4.6.4, resource.update).
func (e *Engine) Update(jobid int64, rtext string, at, duration int64) error {
	if err := e.traverser.Update(e.graph, e.reader, e.format, jobid, rtext, at, duration); err != nil {
		e.markError(jobid)
		return err
	}
	sel, err := e.reader.Parse(e.graph, e.format, rtext)
	if err != nil {
		return err
	}
	vertices := make(map[int64]int64, len(sel.Allocs))
	for _, a := range sel.Allocs {
		vertices[int64(a.Handle)] = a.Qty
	}
	e.state.Upsert(&matchstate.Job{
		JobID:       jobid,
		State:       matchstate.StateAllocated,
		ScheduledAt: at,
		Duration:    duration,
		R:           rtext,
		Vertices:    vertices,
	})
	return nil
}

// Cancel fully releases jobid's allocation (spec section 4.6.4,
// resource.cancel).
func (e *Engine) Cancel(jobid int64) error {
	if err := e.state.Cancel(jobid); err != nil {
		return err
	}
	e.traverser.Remove(e.graph, jobid)
	return nil
}

// PartialCancel releases the subset of jobid's allocation named by
// subsetText, reporting whether nothing remains held (spec section
// 4.6.4, resource.partial-cancel).
func (e *Engine) PartialCancel(jobid int64, subsetText string) (full bool, err error) {
	full, err = e.traverser.PartialCancel(e.graph, e.reader, e.format, jobid, subsetText)
	if err != nil {
		e.markError(jobid)
		return false, err
	}
	if full {
		_, cerr := e.state.PartialCancel(jobid, nil, "")
		return true, cerr
	}
	remaining, rerr := e.remainingVertices(jobid)
	if rerr != nil {
		return false, rerr
	}
	r, rerr := rset.Emit(e.graph, remainingSelection(e.graph, remaining), e.format)
	if rerr != nil {
		return false, rerr
	}
	_, err = e.state.PartialCancel(jobid, remaining, r)
	return false, err
}

// markError transitions jobid to StateError in place, preserving its
// existing R/Vertices rather than dropping the table entry (spec
// section 4.6.4: a failed update or partial-cancel marks the job
// ERROR but leaves the jobid reserved). A jobid with no prior entry
// gets a bare one, since a rehydration attempt can fail before any
// state was ever recorded for it.
func (e *Engine) markError(jobid int64) {
	job, ok := e.state.Job(jobid)
	if !ok {
		job = &matchstate.Job{JobID: jobid}
	}
	job.State = matchstate.StateError
	e.state.Upsert(job)
}

func (e *Engine) remainingVertices(jobid int64) (map[int64]int64, error) {
	job, err := e.state.Info(jobid)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(job.Vertices))
	for h, qty := range job.Vertices {
		pool, ok := e.graph.Pool(graph.Handle(h))
		if !ok || !pool.Planner.HasHolder(planner.Holder(jobid)) {
			continue
		}
		out[h] = qty
	}
	return out, nil
}

func remainingSelection(g *graph.Graph, vertices map[int64]int64) *rset.Selection {
	sel := &rset.Selection{}
	for h, qty := range vertices {
		pool, ok := g.Pool(graph.Handle(h))
		if !ok {
			continue
		}
		rank, _ := g.RankOf(graph.Handle(h))
		sel.Allocs = append(sel.Allocs, rset.Alloc{Handle: graph.Handle(h), Type: pool.Type, Qty: qty, Rank: rank})
	}
	return sel
}

// Info reports jobid's current status (spec section 6, resource.info).
func (e *Engine) Info(jobid int64) (*matchstate.Job, error) {
	return e.state.Info(jobid)
}

// Find evaluates criteria over every vertex (spec section 4.6.5,
// resource.find). An empty format falls back to the engine's default
// wire format.
func (e *Engine) Find(criteria string, format rset.Format, at, duration int64) (string, error) {
	if format == "" {
		format = e.format
	}
	return e.traverser.Find(e.graph, criteria, format, at, duration)
}

// Status renders the all/down/allocated R-set views (spec section
// 4.7, resource.status).
func (e *Engine) Status() (all, down, allocated string, err error) {
	return e.state.Status(e.graph, e.format)
}

// StatsGet returns a snapshot of the graph size and match performance
// counters (spec section 4.8, resource.stats-get).
func (e *Engine) StatsGet() (v, edges int, byRank map[int64]int, stats *perfstats.Stats) {
	byRank = make(map[int64]int)
	for _, h := range e.graph.ByType("node") {
		rank, ok := e.graph.RankOf(h)
		if ok {
			byRank[rank]++
		}
	}
	return e.graph.V(), e.graph.E(), byRank, e.stats
}

// StatsClear resets the since-last-clear match counters (spec section
// 6, resource.stats-clear).
func (e *Engine) StatsClear() {
	e.stats.ClearCounters()
}

// SetStatus flips up/down status on the subtree rooted at path in
// subsystem and applies the mark-down/up planner effects (spec
// section 4.6.6, resource.set_status).
func (e *Engine) SetStatus(subsystem, path string, status graph.Status) ([]int64, error) {
	handle, ok := e.graph.ByPath(subsystem, path)
	if !ok {
		return nil, rpcerr.ErrNotFound
	}
	changed := e.traverser.Mark(e.graph, handle, subsystem, status)
	ids := make([]int64, len(changed))
	for i, h := range changed {
		ids[i] = int64(h)
	}
	if status == graph.Down {
		e.state.NotifyVertexStatusChange(nil, ids, float64(e.graph.GraphDuration.End))
	} else {
		e.state.NotifyVertexStatusChange(ids, nil, float64(e.graph.GraphDuration.End))
	}
	return ids, nil
}

// SetProperty sets key=value on the vertex at path in subsystem (spec
// section 6, resource.set_property).
func (e *Engine) SetProperty(subsystem, path, key, value string) error {
	handle, ok := e.graph.ByPath(subsystem, path)
	if !ok {
		return rpcerr.ErrNotFound
	}
	pool, ok := e.graph.Pool(handle)
	if !ok {
		return rpcerr.ErrNotFound
	}
	if pool.Properties == nil {
		pool.Properties = make(map[string]string)
	}
	pool.Properties[key] = value
	return nil
}

// GetProperty returns the value of key on the vertex at path, or
// ENOENT if either the vertex or the key is absent.
func (e *Engine) GetProperty(subsystem, path, key string) (string, error) {
	handle, ok := e.graph.ByPath(subsystem, path)
	if !ok {
		return "", rpcerr.ErrNotFound
	}
	pool, ok := e.graph.Pool(handle)
	if !ok {
		return "", rpcerr.ErrNotFound
	}
	v, ok := pool.Properties[key]
	if !ok {
		return "", rpcerr.ErrNotFound
	}
	return v, nil
}

// RemoveProperty deletes key from the vertex at path.
func (e *Engine) RemoveProperty(subsystem, path, key string) error {
	handle, ok := e.graph.ByPath(subsystem, path)
	if !ok {
		return rpcerr.ErrNotFound
	}
	pool, ok := e.graph.Pool(handle)
	if !ok {
		return rpcerr.ErrNotFound
	}
	delete(pool.Properties, key)
	return nil
}

// FeasibilityCheck runs a dry-run SATISFIABILITY match (spec section
// 6, feasibility.check): it reports ok or the Unsatisfiable/ENODEV
// error, never committing an allocation.
func (e *Engine) FeasibilityCheck(js *jobspec.Jobspec, at int64) error {
	_, err := e.traverser.Run(e.graph, js, -1, traverser.OpSatisfiability, at, e.format)
	return err
}

// Subscribe returns a channel of vertex status-change notifications
// for resource.notify. Unsubscribe must be called when the peer
// disconnects (spec section 5, Cancellation).
func (e *Engine) Subscribe() events.Subscriber {
	return e.state.Subscribe()
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (e *Engine) Unsubscribe(sub events.Subscriber) {
	e.state.Unsubscribe(sub)
}

// ApplyResourceUpdate folds one resource-acquire stream delta into
// the graph: vertices newly down, vertices newly up, and the horizon
// the update is valid over (spec section 6, Resource-acquire input
// stream).
func (e *Engine) ApplyResourceUpdate(up, down []int64, expiration float64) {
	for _, id := range down {
		_ = e.graph.SetStatus(graph.Handle(id), graph.Down)
	}
	for _, id := range up {
		_ = e.graph.SetStatus(graph.Handle(id), graph.Up)
	}
	e.state.NotifyVertexStatusChange(up, down, expiration)
}

