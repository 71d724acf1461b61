package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiPlannerAvailAcrossDimensions(t *testing.T) {
	mp := NewMultiPlanner(0, 100)
	mp.AddDimension("core", 4)
	mp.AddDimension("gpu", 2)

	require.NoError(t, mp.AddSpan("core", 0, 10, 2, Holder(1)))
	require.NoError(t, mp.AddSpan("gpu", 0, 10, 1, Holder(1)))

	free, err := mp.AvailResourcesDuring("core", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), free)

	free, err = mp.AvailResourcesDuring("gpu", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), free)
}

func TestMultiPlannerUnknownDimension(t *testing.T) {
	mp := NewMultiPlanner(0, 100)
	mp.AddDimension("core", 4)

	_, err := mp.AvailResourcesDuring("gpu", 0, 10)
	require.Error(t, err)
}

func TestMultiPlannerRemoveSpanClearsAllDims(t *testing.T) {
	mp := NewMultiPlanner(0, 100)
	mp.AddDimension("core", 4)
	mp.AddDimension("gpu", 2)
	require.NoError(t, mp.AddSpan("core", 0, 10, 2, Holder(1)))
	require.NoError(t, mp.AddSpan("gpu", 0, 10, 1, Holder(1)))

	mp.RemoveSpan(Holder(1))

	free, _ := mp.AvailResourcesDuring("core", 0, 10)
	assert.Equal(t, int64(4), free)
	free, _ = mp.AvailResourcesDuring("gpu", 0, 10)
	assert.Equal(t, int64(2), free)
}

func TestMultiPlannerAvailTimeFirstRequiresAllDims(t *testing.T) {
	mp := NewMultiPlanner(0, 100)
	mp.AddDimension("core", 4)
	mp.AddDimension("gpu", 1)

	// core is busy [0,10), gpu is busy [5,15)
	require.NoError(t, mp.AddSpan("core", 0, 10, 4, Holder(1)))
	require.NoError(t, mp.AddSpan("gpu", 5, 10, 1, Holder(2)))

	it, err := mp.AvailTimeFirst(0, 5, map[string]int64{"core": 1, "gpu": 1})
	require.NoError(t, err)
	start, err := it.Next()
	require.NoError(t, err)
	// core free from t=10, gpu free from t=15: both satisfied at 15
	assert.Equal(t, int64(15), start)
}
