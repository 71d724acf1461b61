package policy

import (
	"testing"

	"github.com/cuemby/fluxion/pkg/jobspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownPolicyIsRequestMalformed(t *testing.T) {
	_, err := New("does-not-exist")
	require.Error(t, err)
}

func TestNewBuiltinsResolve(t *testing.T) {
	for _, name := range []string{"first", "high", "low", "locality"} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
}

func TestSetPruningTypesWithSpecIsOneTime(t *testing.T) {
	p, err := New("first")
	require.NoError(t, err)

	p.SetPruningTypesWithSpec("containment", "ANY:core,ANY:node")
	assert.True(t, p.IsPruningType("containment", "core"))
	assert.True(t, p.IsPruningType("containment", "node"))
	assert.False(t, p.IsPruningType("containment", "gpu"))

	p.SetPruningTypesWithSpec("containment", "ANY:gpu")
	assert.False(t, p.IsPruningType("containment", "gpu"), "second registration must be a no-op")
}

func TestAddExclusiveResourceType(t *testing.T) {
	p, err := New("first")
	require.NoError(t, err)

	assert.False(t, p.IsExclusiveType("node"))
	p.AddExclusiveResourceType("node")
	assert.True(t, p.IsExclusiveType("node"))
}

func TestCalcCountTakesWholeCandidateOrNothing(t *testing.T) {
	p, err := New("first")
	require.NoError(t, err)

	spec := &jobspec.Resource{Type: "core", Count: jobspec.Count{Min: 4, Max: 4}}
	assert.Equal(t, int64(10), p.CalcCount(spec, 10))
	assert.Equal(t, int64(0), p.CalcCount(spec, 0))
}

func TestCalcEffectiveMaxDistinctInstanceCount(t *testing.T) {
	p, err := New("first")
	require.NoError(t, err)

	plain := &jobspec.Resource{Type: "core", Count: jobspec.Count{Min: 1, Max: 1}}
	assert.Equal(t, int64(1), p.CalcEffectiveMax(plain))

	many := &jobspec.Resource{Type: "core", Count: jobspec.Count{Min: 4, Max: 4}}
	assert.Equal(t, int64(4), p.CalcEffectiveMax(many))

	slotted := &jobspec.Resource{Slot: &jobspec.Slot{Label: "task", Count: 8}}
	assert.Equal(t, int64(8), p.CalcEffectiveMax(slotted))
}

func TestSetSubsystemsOverridesDefault(t *testing.T) {
	p, err := New("first")
	require.NoError(t, err)

	assert.Equal(t, []string{"containment"}, p.Subsystems())
	p.SetSubsystems([]string{"containment", "power"})
	assert.Equal(t, []string{"containment", "power"}, p.Subsystems())

	p.SetSubsystems(nil)
	assert.Equal(t, []string{"containment", "power"}, p.Subsystems(), "empty override must be a no-op")
}

func TestRegisterOverridesFactory(t *testing.T) {
	called := false
	Register("first", func() Policy {
		called = true
		return newFirst()
	})
	defer Register("first", func() Policy { return newFirst() })

	_, err := New("first")
	require.NoError(t, err)
	assert.True(t, called)
}
