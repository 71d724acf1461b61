package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildClusterGraph(t *testing.T) (*Graph, Handle, []Handle, []Handle) {
	t.Helper()
	g := New(0, 1000)
	g.RegisterSubsystem("containment")

	cluster := &Pool{Type: "cluster", Basename: "cluster", ID: 0, Size: 1, Status: Up}
	clusterH, err := g.AddVertex(cluster)
	require.NoError(t, err)
	g.SetRoot("containment", clusterH)

	var nodeHandles, coreHandles []Handle
	for n := 0; n < 2; n++ {
		node := &Pool{Type: "node", Basename: "node", ID: int64(n), Size: 1, Status: Up}
		nodeH, err := g.AddVertex(node)
		require.NoError(t, err)
		require.NoError(t, g.AddEdge(clusterH, nodeH, "containment", "contains"))
		nodeHandles = append(nodeHandles, nodeH)

		for c := 0; c < 2; c++ {
			core := &Pool{Type: "core", Basename: "core", ID: int64(c), Size: 1, Status: Up}
			coreH, err := g.AddVertex(core)
			require.NoError(t, err)
			require.NoError(t, g.AddEdge(nodeH, coreH, "containment", "contains"))
			coreHandles = append(coreHandles, coreH)
		}
	}
	return g, clusterH, nodeHandles, coreHandles
}

func TestAddVertexAssignsPlannerCapacity(t *testing.T) {
	g, _, _, coreHandles := buildClusterGraph(t)
	core, ok := g.Pool(coreHandles[0])
	require.True(t, ok)
	assert.Equal(t, core.Size, core.Planner.Capacity())
}

func TestAddEdgeMaintainsReverseAndPaths(t *testing.T) {
	g, clusterH, nodeHandles, coreHandles := buildClusterGraph(t)

	node0, _ := g.Pool(nodeHandles[0])
	assert.Equal(t, "/cluster0/node0", node0.Paths["containment"])

	core0, _ := g.Pool(coreHandles[0])
	assert.Equal(t, "/cluster0/node0/core0", core0.Paths["containment"])

	h, ok := g.ByPath("containment", "/cluster0/node0/core0")
	require.True(t, ok)
	assert.Equal(t, coreHandles[0], h)

	// reverse edge exists
	in := g.InEdges(nodeHandles[0], "containment")
	require.Len(t, in, 1)
	assert.Equal(t, clusterH, in[0].To)
	assert.Equal(t, "in", in[0].Label.Relation)
}

func TestByTypeAndByName(t *testing.T) {
	g, _, _, coreHandles := buildClusterGraph(t)
	cores := g.ByType("core")
	assert.Len(t, cores, 4)
	assert.ElementsMatch(t, coreHandles, cores)

	h, ok := g.ByName("core0")
	require.True(t, ok)
	assert.Contains(t, coreHandles, h)
}

func TestSetStatusTracksNodesUp(t *testing.T) {
	g, _, nodeHandles, _ := buildClusterGraph(t)
	assert.Equal(t, int64(2), g.NodesUp)

	require.NoError(t, g.SetStatus(nodeHandles[0], Down))
	assert.Equal(t, int64(1), g.NodesUp)

	require.NoError(t, g.SetStatus(nodeHandles[0], Up))
	assert.Equal(t, int64(2), g.NodesUp)
}

func TestDescendantsPreOrder(t *testing.T) {
	g, clusterH, nodeHandles, _ := buildClusterGraph(t)
	all := g.Descendants(clusterH, "containment")
	// cluster + 2 nodes + 4 cores = 7
	assert.Len(t, all, 7)
	assert.Equal(t, clusterH, all[0])
	assert.Contains(t, all, nodeHandles[0])
}

func TestRemapTableCollision(t *testing.T) {
	r := NewRemapTable()
	require.NoError(t, r.Register("hwloc:0", Handle(1)))
	err := r.Register("hwloc:0", Handle(2))
	require.Error(t, err)
}

func TestRemoveVertexClearsIndices(t *testing.T) {
	g, _, _, coreHandles := buildClusterGraph(t)
	before := g.V()
	g.RemoveVertex(coreHandles[0])
	assert.Equal(t, before-1, g.V())
	_, ok := g.Pool(coreHandles[0])
	assert.False(t, ok)
}
