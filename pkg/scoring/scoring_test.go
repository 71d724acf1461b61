package scoring

import (
	"testing"

	"github.com/cuemby/fluxion/pkg/graph"
	"github.com/stretchr/testify/assert"
)

func TestQualifiedCountSumsAcrossGroups(t *testing.T) {
	api := New()
	api.AddEGroup("containment", "core", &EGroup{
		Edges: []EdgeRef{{To: 1, Qty: 2}}, Score: 10, Count: 2,
	})
	api.AddEGroup("containment", "core", &EGroup{
		Edges: []EdgeRef{{To: 2, Qty: 1}}, Score: 5, Count: 1,
	})

	assert.Equal(t, int64(3), api.QualifiedCount("containment", "core"))
	assert.Equal(t, int64(0), api.QualifiedCount("containment", "gpu"))
}

func TestEGroupsPreserveInsertionOrder(t *testing.T) {
	api := New()
	first := &EGroup{Score: 1}
	second := &EGroup{Score: 2}
	api.AddEGroup("containment", "core", first)
	api.AddEGroup("containment", "core", second)

	groups := api.EGroups("containment", "core")
	assert.Same(t, first, groups[0])
	assert.Same(t, second, groups[1])
}

func TestMergeAppendsPreservingOrder(t *testing.T) {
	parent := New()
	child := New()
	child.AddEGroup("containment", "core", &EGroup{Score: 1})
	parent.AddEGroup("containment", "core", &EGroup{Score: 0})

	parent.Merge("containment", "core", child)

	groups := parent.EGroups("containment", "core")
	assert.Len(t, groups, 2)
	assert.Equal(t, int64(0), groups[0].Score)
	assert.Equal(t, int64(1), groups[1].Score)
}
