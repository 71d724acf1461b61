package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/matchstate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorPopulatesVertexGauges(t *testing.T) {
	g := graph.New(0, 1000)
	root := &graph.Pool{Type: "cluster", Basename: "cluster", ID: 0, Size: 1, Status: graph.Up}
	h, err := g.AddVertex(root)
	require.NoError(t, err)
	g.SetRoot("containment", h)

	down := &graph.Pool{Type: "node", Basename: "node", ID: 0, Size: 1, Status: graph.Down}
	dh, err := g.AddVertex(down)
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(h, dh, "containment", "contains"))

	ms := matchstate.New(nil)
	c := NewCollector(g, ms)
	c.collect()

	require.Equal(t, float64(1), testutil.ToFloat64(VerticesUp))
	require.Equal(t, float64(1), testutil.ToFloat64(VerticesDown))
}

func TestCollectorStartStop(t *testing.T) {
	g := graph.New(0, 1000)
	ms := matchstate.New(nil)
	c := NewCollector(g, ms)
	c.Start(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}
