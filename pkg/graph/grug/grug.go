// Package grug generates synthetic resource graphs from a small tiered
// spec instead of parsing a real hardware-discovery document. It is a
// simplified, YAML-described stand-in for the original implementation's
// GRUG generator (resource/readers/resource_spec_grug.{hpp,cpp}): that
// generator expands a GraphML "multiply" spec into a full resource
// graph for testing without real hardware. Ours replaces the GraphML
// generator-graph with a plain recursive tier list (gopkg.in/yaml.v3),
// keeping the same idea: describe one instance of each level and a
// count, then multiply it out.
package grug

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/fluxion/internal/rpcerr"
	"github.com/cuemby/fluxion/pkg/graph"
)

// Tier describes one level of the synthetic hierarchy: Count sibling
// pools of Type/Basename, each recursively containing Children.
type Tier struct {
	Type     string `yaml:"type"`
	Basename string `yaml:"basename"`
	Count    int64  `yaml:"count"`
	Size     int64  `yaml:"size,omitempty"`
	Rank     bool   `yaml:"rank,omitempty"`
	Children []Tier `yaml:"children,omitempty"`
}

// Spec is a full generator spec: one subsystem and its root tier.
type Spec struct {
	Subsystem string `yaml:"subsystem"`
	Root      Tier   `yaml:"root"`
}

// LoadSpec reads and parses a generator spec file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "reading grug spec: "+err.Error())
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "parsing grug spec: "+err.Error())
	}
	if spec.Subsystem == "" {
		return nil, rpcerr.New(rpcerr.KindRequestMalformed, rpcerr.EINVAL, "grug spec missing subsystem")
	}
	return &spec, nil
}

// Generate multiplies spec.Root out into a fresh Graph spanning
// [start, end), registering spec.Subsystem as the containment
// subsystem and every Rank-flagged tier's instances by rank.
// reserveVtxVec, when positive, pre-sizes the graph's vertex indices
// (config key reserve-vtx-vec); 0 leaves them to grow on demand.
func Generate(spec *Spec, start, end, reserveVtxVec int64) (*graph.Graph, error) {
	g := graph.New(start, end)
	g.Reserve(reserveVtxVec)
	g.RegisterSubsystem(spec.Subsystem)

	rankCounter := new(int64)
	rootHandle, err := buildTier(g, spec.Subsystem, spec.Root, -1, -1, rankCounter)
	if err != nil {
		return nil, err
	}
	g.SetRoot(spec.Subsystem, rootHandle)
	return g, nil
}

// buildTier constructs one instance of t (instance id) and recurses
// into its children, wiring each child to parent with a containment
// edge. rankCounter threads the next unused rank across the whole
// subtree for Rank-flagged tiers.
func buildTier(g *graph.Graph, subsystem string, t Tier, id int64, parent graph.Handle, rankCounter *int64) (graph.Handle, error) {
	size := t.Size
	if size == 0 {
		size = 1
	}
	pool := &graph.Pool{
		Type:     t.Type,
		Basename: t.Basename,
		ID:       id,
		Size:     size,
		Status:   graph.Up,
	}
	handle, err := g.AddVertex(pool)
	if err != nil {
		return 0, err
	}
	if parent != graph.Handle(-1) {
		if err := g.AddEdge(parent, handle, subsystem, "contains"); err != nil {
			return 0, err
		}
	}
	if t.Rank {
		g.RegisterRank(*rankCounter, handle)
		*rankCounter++
	}
	for _, child := range t.Children {
		for i := int64(0); i < child.Count; i++ {
			if _, err := buildTier(g, subsystem, child, i, handle, rankCounter); err != nil {
				return 0, fmt.Errorf("generating %s[%d]: %w", child.Basename, i, err)
			}
		}
	}
	return handle, nil
}
