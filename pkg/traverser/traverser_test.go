package traverser

import (
	"testing"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/cuemby/fluxion/pkg/policy"
	"github.com/cuemby/fluxion/pkg/rset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newFirstTraverser(t *testing.T, g *graph.Graph) *Traverser {
	t.Helper()
	p, err := policy.New("first")
	require.NoError(t, err)
	tr := New(p)
	require.NoError(t, tr.Initialize(g))
	return tr
}

// newFirstTraverserWithPruning registers "node" and "core" as pruning
// types before priming, so that the root's multi-planner tracks their
// aggregate availability (needed by ALLOCATE_ORELSE_RESERVE's
// root-level avail_time_first search).
func newFirstTraverserWithPruning(t *testing.T, g *graph.Graph) *Traverser {
	t.Helper()
	p, err := policy.New("first")
	require.NoError(t, err)
	p.SetPruningTypesWithSpec("containment", "ANY:node,ANY:core")
	tr := New(p)
	require.NoError(t, tr.Initialize(g))
	return tr
}

func TestAllocateSucceedsAndReservesPlanner(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	res, err := tr.Run(g, twoCoreNodeJobspec(), 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated, res.Status)
	assert.NotEmpty(t, res.R)
}

func TestSecondOverlappingAllocateIsBusy(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	_, err := tr.Run(g, twoCoreNodeJobspec(), 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)

	// Only one node has 2 free cores left untouched now (job 1 consumed
	// both of node0's cores at [0,10)); a second identical request for
	// the same window must fall back to node1, which still succeeds.
	_, err = tr.Run(g, twoCoreNodeJobspec(), 2, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)

	// A third request exhausts both nodes' core pairs.
	_, err = tr.Run(g, twoCoreNodeJobspec(), 3, OpAllocate, 0, rset.FormatRV1NoSched)
	require.Error(t, err)
}

func TestAllocateOrElseReserveFindsLaterSlot(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverserWithPruning(t, g)

	_, err := tr.Run(g, twoCoreNodeJobspec(), 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
	_, err = tr.Run(g, twoCoreNodeJobspec(), 2, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)

	res, err := tr.Run(g, twoCoreNodeJobspec(), 3, OpAllocateOrElseReserve, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, res.Status)
	assert.Greater(t, res.At, int64(0))
}

func TestRemoveClearsPlannerSpans(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	_, err := tr.Run(g, twoCoreNodeJobspec(), 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)

	tr.Remove(g, 1)

	// Now the same request at the same time succeeds again from scratch.
	_, err = tr.Run(g, twoCoreNodeJobspec(), 4, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
}

func TestMarkDownThenUpIsIdentityOnPlanner(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	node0, ok := g.ByName("node0")
	require.True(t, ok)
	before, ok := g.Pool(node0)
	require.True(t, ok)
	freeBefore, _ := before.Planner.AvailResourcesDuring(0, 1000)

	tr.Mark(g, node0, "containment", graph.Down)
	tr.Mark(g, node0, "containment", graph.Up)

	freeAfter, _ := before.Planner.AvailResourcesDuring(0, 1000)
	assert.Equal(t, freeBefore, freeAfter)
}

// twoSlotNodeJobspec asks for one node carrying a 2-count slot, each
// instance of which wants a single core: the slot construct itself
// names no graph type, so matching it exercises matchSlot/matchChild
// rather than pickCandidates directly.
func twoSlotNodeJobspec() *jobspec.Jobspec {
	return &jobspec.Jobspec{
		Duration: 10,
		Resources: []*jobspec.Resource{
			{
				Type:  "node",
				Count: jobspec.Count{Min: 1, Max: 1},
				With: []*jobspec.Resource{
					{
						Slot: &jobspec.Slot{Label: "task", Count: 2},
						With: []*jobspec.Resource{
							{Type: "core", Count: jobspec.Count{Min: 1, Max: 1}},
						},
					},
				},
			},
		},
	}
}

func TestAllocateMatchesSlotConstructAcrossRepetitions(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	res, err := tr.Run(g, twoSlotNodeJobspec(), 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated, res.Status)
	// Both of node0's cores end up claimed, one per slot instance.
	assert.Contains(t, res.R, `"core":"0-1"`)
}

func TestAllocateSlotFailsWhenFewerCoresThanSlotsRemain(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	// Consume one core on every node first, leaving only one free core
	// per node: not enough for a 2-instance slot on either.
	oneCoreJobspec := &jobspec.Jobspec{
		Duration: 10,
		Resources: []*jobspec.Resource{
			{
				Type:  "node",
				Count: jobspec.Count{Min: 2, Max: 2},
				With: []*jobspec.Resource{
					{Type: "core", Count: jobspec.Count{Min: 1, Max: 1}},
				},
			},
		},
	}
	_, err := tr.Run(g, oneCoreJobspec, 1, OpAllocate, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)

	_, err = tr.Run(g, twoSlotNodeJobspec(), 2, OpAllocate, 0, rset.FormatRV1NoSched)
	require.Error(t, err)
}

func TestMatchWithoutAllocatingDoesNotMutatePlanner(t *testing.T) {
	g := buildFixture(t)
	tr := newFirstTraverser(t, g)

	node0, _ := g.ByName("node0")
	pool, _ := g.Pool(node0)
	freeBefore, _ := pool.Planner.AvailResourcesDuring(0, 10)

	res, err := tr.Run(g, twoCoreNodeJobspec(), 1, OpMatchWithoutAllocating, 0, rset.FormatRV1NoSched)
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, res.Status)

	freeAfter, _ := pool.Planner.AvailResourcesDuring(0, 10)
	assert.Equal(t, freeBefore, freeAfter)
}
