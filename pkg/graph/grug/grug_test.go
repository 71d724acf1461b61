package grug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodeFourCoreSpec() *Spec {
	return &Spec{
		Subsystem: "containment",
		Root: Tier{
			Type:     "cluster",
			Basename: "cluster",
			Children: []Tier{
				{
					Type:     "node",
					Basename: "node",
					Count:    2,
					Rank:     true,
					Children: []Tier{
						{Type: "core", Basename: "core", Count: 4},
					},
				},
			},
		},
	}
}

func TestGenerateBuildsExpectedVertexCounts(t *testing.T) {
	g, err := Generate(twoNodeFourCoreSpec(), 0, 1000, 0)
	require.NoError(t, err)

	// 1 cluster + 2 nodes + 8 cores
	assert.Equal(t, 11, g.V())
	assert.Len(t, g.ByType("node"), 2)
	assert.Len(t, g.ByType("core"), 8)
}

func TestGenerateAssignsDistinctSequentialRanks(t *testing.T) {
	g, err := Generate(twoNodeFourCoreSpec(), 0, 1000, 0)
	require.NoError(t, err)

	nodes := g.ByType("node")
	require.Len(t, nodes, 2)
	ranks := make(map[int64]bool)
	for _, h := range nodes {
		rank, ok := g.RankOf(h)
		require.True(t, ok)
		ranks[rank] = true
	}
	assert.Len(t, ranks, 2)
}

func TestGenerateWiresRootAndPaths(t *testing.T) {
	g, err := Generate(twoNodeFourCoreSpec(), 0, 1000, 0)
	require.NoError(t, err)

	root, ok := g.Root("containment")
	require.True(t, ok)
	pool, ok := g.Pool(root)
	require.True(t, ok)
	assert.Equal(t, "cluster", pool.Type)

	_, ok = g.ByPath("containment", "/cluster/node0")
	assert.True(t, ok)
	_, ok = g.ByPath("containment", "/cluster/node0/core2")
	assert.True(t, ok)
}

func TestLoadSpecRejectsMissingFile(t *testing.T) {
	_, err := LoadSpec("/nonexistent/path/grug.yaml")
	require.Error(t, err)
}
