package matchstate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/fluxion/internal/log"
	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/events"
	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/rset"
)

// State is a job's lifecycle stage (spec section 3, Job).
type State string

const (
	StateInit      State = "INIT"
	StateAllocated State = "ALLOCATED"
	StateReserved  State = "RESERVED"
	StateMatched   State = "MATCHED"
	StateCanceled  State = "CANCELED"
	StateError     State = "ERROR"
)

// Job is one entry in the match state's job table.
type Job struct {
	JobID       int64
	State       State
	ScheduledAt int64
	Duration    int64
	JobspecText string
	R           string
	Overhead    time.Duration
	// Vertices maps a chosen vertex handle to the quantity taken from
	// it, so partial-cancel and remove can reconcile holder spans
	// without re-parsing R.
	Vertices map[int64]int64
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Vertices = make(map[int64]int64, len(j.Vertices))
	for k, v := range j.Vertices {
		cp.Vertices[k] = v
	}
	return &cp
}

// MatchState is the job table plus cached status R-sets (spec section
// 4.7). All methods are safe for concurrent use, though the scheduling
// model (spec section 5) only ever calls them from the reactor thread.
type MatchState struct {
	mu     sync.RWMutex
	jobs   map[int64]*Job
	live   []int64 // sorted ascending, kept for next_jobid/is_existent
	broker *events.Broker

	cache map[string]string
	dirty map[string]bool
}

// New constructs an empty MatchState. broker may be nil if no
// resource.notify subscribers are wired.
func New(broker *events.Broker) *MatchState {
	return &MatchState{
		jobs:   make(map[int64]*Job),
		broker: broker,
		cache:  make(map[string]string),
		dirty:  map[string]bool{"all": true, "down": true, "allocated": true},
	}
}

// NextJobID returns max(live)+1, or 0 if no job is live. Returns
// Exhausted/ERANGE once the jobid space saturates at MaxInt64 (spec
// section 4.7).
func (ms *MatchState) NextJobID() (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if len(ms.live) == 0 {
		return 0, nil
	}
	max := ms.live[len(ms.live)-1]
	if max == math.MaxInt64 {
		return 0, rpcerr.New(rpcerr.KindExhausted, rpcerr.ERANGE, "jobid space exhausted")
	}
	return max + 1, nil
}

// IsExistent reports whether jobid is live, in O(log n).
func (ms *MatchState) IsExistent(jobid int64) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.indexOf(jobid) >= 0
}

// indexOf returns the index of jobid in ms.live, or -1. Caller must
// hold at least a read lock.
func (ms *MatchState) indexOf(jobid int64) int {
	i := sort.Search(len(ms.live), func(i int) bool { return ms.live[i] >= jobid })
	if i < len(ms.live) && ms.live[i] == jobid {
		return i
	}
	return -1
}

// Job returns a copy of jobid's table entry, or false if absent.
func (ms *MatchState) Job(jobid int64) (*Job, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	j, ok := ms.jobs[jobid]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

// Upsert inserts job, or replaces an existing entry with the same
// jobid. Used both on first match (INIT -> ALLOCATED/RESERVED/MATCHED)
// and to rehydrate a job surfaced by the resource-acquire stream.
func (ms *MatchState) Upsert(job *Job) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := job.clone()
	if _, exists := ms.jobs[job.JobID]; !exists {
		ms.insertLive(job.JobID)
	}
	ms.jobs[job.JobID] = stored
	ms.markDirty()
}

// Cancel fully removes jobid from the table (spec section 4.7,
// ENOENT if jobid is not live).
func (ms *MatchState) Cancel(jobid int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.jobs[jobid]; !ok {
		return rpcerr.New(rpcerr.KindNotFound, rpcerr.ENOENT, "no such jobid")
	}
	delete(ms.jobs, jobid)
	ms.removeLive(jobid)
	ms.markDirty()
	log.WithComponent("matchstate").Debug().Int64("jobid", jobid).Msg("job canceled")
	return nil
}

// PartialCancel updates jobid's remaining vertex/qty set and R after a
// subset of its allocation was removed. When the job holds nothing
// left (full is true), the entry is removed entirely, matching a full
// cancel (spec section 4.6.4 "partial-cancel ... or the whole thing").
func (ms *MatchState) PartialCancel(jobid int64, remaining map[int64]int64, r string) (full bool, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobid]
	if !ok {
		return false, rpcerr.New(rpcerr.KindNotFound, rpcerr.ENOENT, "no such jobid")
	}
	if len(remaining) == 0 {
		delete(ms.jobs, jobid)
		ms.removeLive(jobid)
		ms.markDirty()
		return true, nil
	}
	job.Vertices = remaining
	job.R = r
	ms.markDirty()
	return false, nil
}

// Info returns jobid's status, scheduled time, and overhead, or
// ENOENT (spec section 6, resource.info).
func (ms *MatchState) Info(jobid int64) (*Job, error) {
	j, ok := ms.Job(jobid)
	if !ok {
		return nil, rpcerr.New(rpcerr.KindNotFound, rpcerr.ENOENT, "no such jobid")
	}
	return j, nil
}

// NotifyVertexStatusChange wakes resource.notify subscribers with the
// vertex ids that just went up or down and the expiration horizon
// their status is valid under, and marks the cached status views
// stale (spec section 4.7).
func (ms *MatchState) NotifyVertexStatusChange(up, down []int64, expiration float64) {
	ms.mu.Lock()
	ms.dirty["all"] = true
	ms.dirty["down"] = true
	ms.mu.Unlock()

	if ms.broker == nil || (len(up) == 0 && len(down) == 0) {
		return
	}
	ms.broker.Publish(&events.Notification{Up: up, Down: down, Expiration: expiration})
}

// CountsByState returns the number of live jobs per State, for metrics
// collection.
func (ms *MatchState) CountsByState() map[State]int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make(map[State]int)
	for _, job := range ms.jobs {
		out[job.State]++
	}
	return out
}

// Subscribe returns a channel of status-change notifications, or nil
// if this MatchState has no broker wired.
func (ms *MatchState) Subscribe() events.Subscriber {
	if ms.broker == nil {
		return nil
	}
	return ms.broker.Subscribe()
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (ms *MatchState) Unsubscribe(sub events.Subscriber) {
	if ms.broker == nil || sub == nil {
		return
	}
	ms.broker.Unsubscribe(sub)
}

// Status renders the cached all/down/allocated R-sets against g,
// recomputing whichever views are marked dirty (spec section 4.7,
// 6 resource.status).
func (ms *MatchState) Status(g *graph.Graph, format rset.Format) (all, down, allocated string, err error) {
	all, err = ms.cached(g, "all", format, ms.buildAllSelection)
	if err != nil {
		return "", "", "", err
	}
	down, err = ms.cached(g, "down", format, ms.buildDownSelection)
	if err != nil {
		return "", "", "", err
	}
	allocated, err = ms.cached(g, "allocated", format, ms.buildAllocatedSelection)
	if err != nil {
		return "", "", "", err
	}
	return all, down, allocated, nil
}

func (ms *MatchState) cached(g *graph.Graph, kind string, format rset.Format, build func(*graph.Graph) *rset.Selection) (string, error) {
	ms.mu.Lock()
	if !ms.dirty[kind] {
		text := ms.cache[kind]
		ms.mu.Unlock()
		return text, nil
	}
	ms.mu.Unlock()

	text, err := rset.Emit(g, build(g), format)
	if err != nil {
		return "", err
	}

	ms.mu.Lock()
	ms.cache[kind] = text
	ms.dirty[kind] = false
	ms.mu.Unlock()
	return text, nil
}

func (ms *MatchState) markDirty() {
	ms.dirty["all"] = true
	ms.dirty["down"] = true
	ms.dirty["allocated"] = true
}

func (ms *MatchState) buildAllSelection(g *graph.Graph) *rset.Selection {
	sel := &rset.Selection{}
	for _, v := range allVertices(g) {
		p, ok := g.Pool(v)
		if !ok {
			continue
		}
		sel.Allocs = append(sel.Allocs, rset.Alloc{Handle: v, Type: p.Type, Qty: p.Size, Rank: rankOf(g, v)})
	}
	return sel
}

func (ms *MatchState) buildDownSelection(g *graph.Graph) *rset.Selection {
	sel := &rset.Selection{}
	for _, v := range allVertices(g) {
		p, ok := g.Pool(v)
		if !ok || p.Status != graph.Down {
			continue
		}
		sel.Allocs = append(sel.Allocs, rset.Alloc{Handle: v, Type: p.Type, Qty: p.Size, Rank: rankOf(g, v)})
	}
	return sel
}

func (ms *MatchState) buildAllocatedSelection(g *graph.Graph) *rset.Selection {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	sel := &rset.Selection{}
	for _, job := range ms.jobs {
		if job.State != StateAllocated && job.State != StateReserved {
			continue
		}
		for handle, qty := range job.Vertices {
			h := graph.Handle(handle)
			p, ok := g.Pool(h)
			if !ok {
				continue
			}
			sel.Allocs = append(sel.Allocs, rset.Alloc{Handle: h, Type: p.Type, Qty: qty, Rank: rankOf(g, h)})
		}
	}
	return sel
}

// insertLive and removeLive keep ms.live sorted. Caller must hold the
// write lock.
func (ms *MatchState) insertLive(jobid int64) {
	i := sort.Search(len(ms.live), func(i int) bool { return ms.live[i] >= jobid })
	ms.live = append(ms.live, 0)
	copy(ms.live[i+1:], ms.live[i:])
	ms.live[i] = jobid
}

func (ms *MatchState) removeLive(jobid int64) {
	i := ms.indexOf(jobid)
	if i < 0 {
		return
	}
	ms.live = append(ms.live[:i], ms.live[i+1:]...)
}

func allVertices(g *graph.Graph) []graph.Handle {
	seen := make(map[graph.Handle]bool)
	var out []graph.Handle
	for _, s := range g.Subsystems() {
		root, ok := g.Root(s)
		if !ok {
			continue
		}
		for _, v := range g.Descendants(root, s) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func rankOf(g *graph.Graph, handle graph.Handle) int64 {
	r, ok := g.RankOf(handle)
	if !ok {
		return -1
	}
	return r
}
