package metrics

import (
	"time"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/cuemby/fluxion/pkg/matchstate"
)

// Collector periodically samples the graph and match state into the
// gauge metrics declared in metrics.go. Match counters and histograms are updated
// inline by the engine at the point of each event; this only handles
// the metrics that are cheaper to poll than to push.
type Collector struct {
	graph *graph.Graph
	state *matchstate.MatchState
	stopCh chan struct{}
}

// NewCollector builds a Collector over g and ms.
func NewCollector(g *graph.Graph, ms *matchstate.MatchState) *Collector {
	return &Collector{graph: g, state: ms, stopCh: make(chan struct{})}
}

// Start begins polling at the given interval in its own goroutine.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	var up, down int
	for _, s := range c.graph.Subsystems() {
		root, ok := c.graph.Root(s)
		if !ok {
			continue
		}
		for _, v := range c.graph.Descendants(root, s) {
			p, ok := c.graph.Pool(v)
			if !ok {
				continue
			}
			if p.Status == graph.Up {
				up++
			} else {
				down++
			}
		}
	}
	VerticesUp.Set(float64(up))
	VerticesDown.Set(float64(down))

	for state, count := range c.state.CountsByState() {
		JobsByState.WithLabelValues(string(state)).Set(float64(count))
	}
}
