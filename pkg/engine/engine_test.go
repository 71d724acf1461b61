package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/matchstate"
	"github.com/cuemby/fluxion/pkg/rpc"
	"github.com/cuemby/fluxion/pkg/rset"
	"github.com/cuemby/fluxion/pkg/traverser"
)

// buildFixture creates cluster0 -> {node0,node1} -> {core0,core1} each,
// spanning [0, 1000).
func buildFixture(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(0, 1000)

	cluster := &graph.Pool{Type: "cluster", Basename: "cluster", ID: 0, Size: 1, Status: graph.Up}
	clusterH, err := g.AddVertex(cluster)
	require.NoError(t, err)
	g.SetRoot("containment", clusterH)

	for n := int64(0); n < 2; n++ {
		node := &graph.Pool{Type: "node", Basename: "node", ID: n, Size: 1, Status: graph.Up}
		nodeH, err := g.AddVertex(node)
		require.NoError(t, err)
		require.NoError(t, g.AddEdge(clusterH, nodeH, "containment", "contains"))
		g.RegisterRank(n, nodeH)

		for c := int64(0); c < 2; c++ {
			core := &graph.Pool{Type: "core", Basename: "core", ID: c, Size: 1, Status: graph.Up}
			coreH, err := g.AddVertex(core)
			require.NoError(t, err)
			require.NoError(t, g.AddEdge(nodeH, coreH, "containment", "contains"))
		}
	}
	return g
}

func twoCoreNodeJobspec() *jobspec.Jobspec {
	return &jobspec.Jobspec{
		Duration: 10,
		Resources: []*jobspec.Resource{
			{
				Type:  "node",
				Count: jobspec.Count{Min: 1, Max: 1},
				With: []*jobspec.Resource{
					{Type: "core", Count: jobspec.Count{Min: 2, Max: 2}},
				},
			},
		},
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	g := buildFixture(t)
	e, err := New(g, "first", rset.FormatRV1NoSched, Options{})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestMatchAllocatesAndRecordsJob(t *testing.T) {
	e := newEngine(t)

	res, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
	assert.Equal(t, traverser.StatusAllocated, res.Status)

	job, err := e.Info(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.JobID)
	assert.NotEmpty(t, job.Vertices)
}

func TestMatchRejectsReusedJobID(t *testing.T) {
	e := newEngine(t)

	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)

	_, err = e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.Error(t, err)
}

func TestMatchAutoAssignsJobID(t *testing.T) {
	e := newEngine(t)

	res, err := e.Match(0, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.JobID)

	res2, err := e.Match(0, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res2.JobID)
}

func TestCancelReleasesAllocation(t *testing.T) {
	e := newEngine(t)

	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(1))

	_, err = e.Info(1)
	require.Error(t, err)

	// The freed capacity can be matched again.
	_, err = e.Match(2, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
}

func TestCancelUnknownJobIsNotFound(t *testing.T) {
	e := newEngine(t)
	err := e.Cancel(999)
	require.Error(t, err)
}

func TestStatusReportsAllocatedSubset(t *testing.T) {
	e := newEngine(t)

	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)

	all, down, allocated, err := e.Status()
	require.NoError(t, err)
	assert.NotEmpty(t, all)
	assert.Empty(t, down)
	assert.NotEmpty(t, allocated)
}

func TestSetStatusMarksSubtreeDownAndNotifies(t *testing.T) {
	e := newEngine(t)

	sub := e.Subscribe()
	require.NotNil(t, sub)
	defer e.Unsubscribe(sub)

	ids, err := e.SetStatus("containment", "/cluster0/node0", graph.Down)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	notif := <-sub
	assert.ElementsMatch(t, ids, notif.Down)
}

func TestPropertyRoundTrip(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.SetProperty("containment", "/cluster0/node0", "rack", "r1"))
	v, err := e.GetProperty("containment", "/cluster0/node0", "rack")
	require.NoError(t, err)
	assert.Equal(t, "r1", v)

	require.NoError(t, e.RemoveProperty("containment", "/cluster0/node0", "rack"))
	_, err = e.GetProperty("containment", "/cluster0/node0", "rack")
	require.Error(t, err)
}

func TestFeasibilityCheckDoesNotAllocate(t *testing.T) {
	e := newEngine(t)

	require.NoError(t, e.FeasibilityCheck(twoCoreNodeJobspec(), 0))

	// The graph is untouched: a real allocate still succeeds afterward
	// for both nodes before exhaustion.
	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
	_, err = e.Match(2, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
}

func TestStatsGetCountsVerticesAndMatches(t *testing.T) {
	e := newEngine(t)

	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)

	v, edges, byRank, stats := e.StatsGet()
	assert.Greater(t, v, 0)
	assert.Greater(t, edges, 0)
	assert.Len(t, byRank, 2)
	assert.Equal(t, uint64(1), stats.Succeeded.NJobs)
}

func TestDispatchMatchRoundTrip(t *testing.T) {
	e := newEngine(t)

	jsBytes, err := json.Marshal(twoCoreNodeJobspec())
	require.NoError(t, err)
	req := rpc.MatchRequest{Cmd: rpc.CmdAllocate, JobID: 1, Jobspec: jsBytes}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	respBytes, err := e.Dispatch(nil, rpc.TopicMatch, payload)
	require.NoError(t, err)

	var resp rpc.MatchResponse
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, int64(1), resp.JobID)
	assert.Equal(t, "ALLOCATED", resp.Status)
	assert.NotEmpty(t, resp.R)
}

func TestDispatchUnknownTopic(t *testing.T) {
	e := newEngine(t)
	_, err := e.Dispatch(nil, rpc.Topic("bogus"), []byte("{}"))
	require.Error(t, err)
}

func TestDispatchMatchMultiRunsEachJobInOrder(t *testing.T) {
	e := newEngine(t)

	jsBytes, err := json.Marshal(twoCoreNodeJobspec())
	require.NoError(t, err)
	req := rpc.MatchMultiRequest{
		Cmd: rpc.CmdAllocate,
		Jobs: []rpc.MatchMultiJob{
			{JobID: 1, Jobspec: jsBytes},
			{JobID: 2, Jobspec: jsBytes},
			{JobID: 3, Jobspec: jsBytes},
		},
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	respBytes, err := e.Dispatch(nil, rpc.TopicMatchMulti, payload)
	require.NoError(t, err)

	var resp rpc.MatchMultiResponse
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "ALLOCATED", resp.Results[0].Status)
	assert.Equal(t, "ALLOCATED", resp.Results[1].Status)
	// Only two nodes exist in the fixture: the third job can't fit.
	assert.Equal(t, "FAILED", resp.Results[2].Status)
}

func TestUpdateConflictMarksJobError(t *testing.T) {
	e := newEngine(t)

	_, err := e.Match(1, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)
	_, err = e.Match(2, twoCoreNodeJobspec(), traverser.OpAllocate, 0)
	require.NoError(t, err)

	job1, err := e.Info(1)
	require.NoError(t, err)
	job2, err := e.Info(2)
	require.NoError(t, err)

	// job2's R names vertices job1 doesn't hold and that are already
	// fully booked by job2 itself: rehydrating job1 against it can't
	// acquire a second span there and fails.
	err = e.Update(1, job2.R, 0, 10)
	require.Error(t, err)

	after, err := e.Info(1)
	require.NoError(t, err)
	assert.Equal(t, matchstate.StateError, after.State)
	assert.Equal(t, job1.Vertices, after.Vertices, "prior allocation must survive the failed update")
}

func TestDispatchNotifyIsRejected(t *testing.T) {
	e := newEngine(t)
	_, err := e.Dispatch(nil, rpc.TopicNotify, []byte("{}"))
	require.Error(t, err)
}
